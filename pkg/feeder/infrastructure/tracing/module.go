package tracing

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// InstrumentationName identifies the feeder's tracer.
const InstrumentationName = "github.com/tigerroll/feeder"

// NewTracerDecorator replaces the no-op tracer when feeder.tracing.enabled is set.
// The provider is shut down, flushing pending spans, when the application stops.
func NewTracerDecorator(lc fx.Lifecycle, cfg *config.Config, tracer metrics.Tracer) (metrics.Tracer, error) {
	tc := cfg.Feeder.Tracing
	if !tc.Enabled {
		return tracer, nil
	}
	provider, err := NewTracerProvider(context.Background(), tc)
	if err != nil {
		return nil, exception.NewConfigError("tracing", "failed to create tracer provider", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Debugf("Tracing: Shutting down tracer provider.")
			return provider.Shutdown(ctx)
		},
	})
	logger.Infof("Tracing enabled (exporter: %s, service: %s).", tc.Exporter, tc.ServiceName)
	return NewOpenTelemetryTracer(provider.Tracer(InstrumentationName)), nil
}

// Module decorates the core tracer according to feeder.tracing.
var Module = fx.Options(
	fx.Decorate(NewTracerDecorator),
)
