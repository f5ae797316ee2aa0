package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	metrics "github.com/tigerroll/feeder/pkg/feeder/core/metrics"
)

// InstrumentationName identifies the feeder's meters and tracers.
const InstrumentationName = "github.com/tigerroll/feeder"

// OTelRecorder records feeder metrics through an OpenTelemetry meter.
type OTelRecorder struct {
	queries       metric.Int64Counter
	queryDuration metric.Float64Histogram
	lookups       metric.Int64Counter
	chunkRows     metric.Int64Counter
	extractRuns   metric.Int64Counter
	extractRows   metric.Int64Counter
	extractTime   metric.Float64Histogram
	loadRuns      metric.Int64Counter
	loadRows      metric.Int64Counter
	loadTime      metric.Float64Histogram
}

// NewOTelRecorder creates the instruments on meter. Names are prefixed with namespace.
func NewOTelRecorder(meter metric.Meter, namespace string) (*OTelRecorder, error) {
	name := func(s string) string {
		if namespace == "" {
			return s
		}
		return namespace + "." + s
	}
	var (
		r   OTelRecorder
		err error
	)
	counter := func(dst *metric.Int64Counter, n, desc string) {
		if err == nil {
			*dst, err = meter.Int64Counter(name(n), metric.WithDescription(desc))
		}
	}
	histogram := func(dst *metric.Float64Histogram, n, desc string) {
		if err == nil {
			*dst, err = meter.Float64Histogram(name(n), metric.WithDescription(desc), metric.WithUnit("s"))
		}
	}
	counter(&r.queries, "source.queries", "Source store queries by outcome.")
	histogram(&r.queryDuration, "source.query.duration", "Duration of source store queries.")
	counter(&r.lookups, "lookups", "Point lookups by cache result.")
	counter(&r.chunkRows, "extract.chunk.rows", "Rows produced by extraction chunks.")
	counter(&r.extractRuns, "extract.runs", "Extraction runs by outcome.")
	counter(&r.extractRows, "extract.rows", "Rows written to artifacts.")
	histogram(&r.extractTime, "extract.duration", "Duration of extraction runs.")
	counter(&r.loadRuns, "load.runs", "Loads by mode and outcome.")
	counter(&r.loadRows, "load.rows", "Rows inserted into the destination store.")
	histogram(&r.loadTime, "load.duration", "Duration of loads.")
	if err != nil {
		return nil, fmt.Errorf("failed to create instrument: %w", err)
	}
	return &r, nil
}

// RecordQuery implements metrics.MetricRecorder.
func (r *OTelRecorder) RecordQuery(ctx context.Context, table string, duration time.Duration, err error) {
	r.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table), attribute.String("status", status(err))))
	r.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("table", table)))
}

// RecordChunk implements metrics.MetricRecorder.
func (r *OTelRecorder) RecordChunk(ctx context.Context, table string, rows int64, duration time.Duration) {
	r.chunkRows.Add(ctx, rows, metric.WithAttributes(attribute.String("table", table)))
}

// RecordExtract implements metrics.MetricRecorder.
func (r *OTelRecorder) RecordExtract(ctx context.Context, table string, rows int64, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("table", table), attribute.String("status", status(err)))
	r.extractRuns.Add(ctx, 1, attrs)
	r.extractTime.Record(ctx, duration.Seconds(), attrs)
	if err == nil {
		r.extractRows.Add(ctx, rows, metric.WithAttributes(attribute.String("table", table)))
	}
}

// RecordLookup implements metrics.MetricRecorder.
func (r *OTelRecorder) RecordLookup(ctx context.Context, table, field string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("table", table), attribute.String("field", field), attribute.String("result", result)))
}

// RecordLoad implements metrics.MetricRecorder.
func (r *OTelRecorder) RecordLoad(ctx context.Context, table, mode string, rows int64, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("table", table), attribute.String("mode", mode), attribute.String("status", status(err)))
	r.loadRuns.Add(ctx, 1, attrs)
	r.loadTime.Record(ctx, duration.Seconds(), attrs)
	if err == nil {
		r.loadRows.Add(ctx, rows, metric.WithAttributes(attribute.String("table", table), attribute.String("mode", mode)))
	}
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)

// NewMeterProvider creates a MeterProvider exporting over OTLP per cfg.
// The caller must Shutdown the provider to flush pending data.
func NewMeterProvider(ctx context.Context, cfg config.MetricsConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch cfg.Exporter {
	case "otlpgrpc":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case "otlphttp":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metric exporter: %w", cfg.Exporter, err)
	}
	opts := []sdkmetric.Option{sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter))}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}
