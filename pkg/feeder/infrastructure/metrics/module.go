package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"

	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	metrics "github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "metrics"

// Backend names accepted in feeder.metrics.backend.
const (
	BackendPrometheus = "prometheus"
	BackendOTLP       = "otlp"
)

// NewRecorderDecorator replaces the no-op recorder with the configured backend.
// It is meant for fx.Decorate. When metrics are disabled the recorder passes through untouched.
func NewRecorderDecorator(lc fx.Lifecycle, cfg *config.Config, recorder metrics.MetricRecorder) (metrics.MetricRecorder, error) {
	mc := cfg.Feeder.Metrics
	if !mc.Enabled {
		return recorder, nil
	}

	var backend metrics.MetricRecorder
	switch mc.Backend {
	case "", BackendPrometheus:
		prom := NewPrometheusRecorder(mc.Namespace)
		if mc.TextfilePath != "" {
			path := mc.TextfilePath
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					if err := prom.WriteTextfile(path); err != nil {
						logger.Errorf("Failed to write metrics textfile '%s': %v", path, err)
						return err
					}
					logger.Infof("Metrics written to '%s'.", path)
					return nil
				},
			})
		}
		backend = prom
	case BackendOTLP:
		res := resource.NewSchemaless(attribute.String("service.name", cfg.Feeder.Tracing.ServiceName))
		provider, err := NewMeterProvider(context.Background(), mc, res)
		if err != nil {
			return nil, exception.NewConfigError(moduleName, "failed to create meter provider", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
		otelRec, err := NewOTelRecorder(provider.Meter(InstrumentationName), mc.Namespace)
		if err != nil {
			return nil, exception.NewConfigError(moduleName, "failed to create metric instruments", err)
		}
		backend = otelRec
	default:
		return nil, exception.NewConfigError(moduleName, "unsupported metrics backend '"+mc.Backend+"'", nil)
	}
	logger.Infof("Metrics enabled (backend: %s).", mc.Backend)

	if mc.AsyncBufferSize > 0 {
		async := NewAsyncMetricRecorder(mc.AsyncBufferSize, backend)
		// Appended last so it stops first and flushes into the backend before the backend shuts down.
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				async.Close()
				return nil
			},
		})
		logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
		return async, nil
	}
	return backend, nil
}

// Module decorates the core metric recorder according to feeder.metrics.
var Module = fx.Options(
	fx.Decorate(NewRecorderDecorator),
)
