// Package metrics provides the MetricRecorder backends: Prometheus and OpenTelemetry (OTLP).
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	metrics "github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// Metrics live in a private registry so several recorders can coexist in tests.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Source metrics
	queryDurationSeconds *prometheus.HistogramVec
	queryCounter         *prometheus.CounterVec
	lookupCounter        *prometheus.CounterVec

	// Extract metrics
	extractDurationSeconds *prometheus.HistogramVec
	extractCounter         *prometheus.CounterVec
	extractRows            *prometheus.CounterVec
	chunkDurationSeconds   *prometheus.HistogramVec
	chunkRows              *prometheus.CounterVec

	// Load metrics
	loadDurationSeconds *prometheus.HistogramVec
	loadCounter         *prometheus.CounterVec
	loadRows            *prometheus.CounterVec
}

// NewPrometheusRecorder creates a PrometheusRecorder whose metric names start with namespace.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		queryDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_query_duration_seconds",
			Help:      "Duration of source store queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		queryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_queries_total",
			Help:      "Total source store queries by outcome.",
		}, []string{"table", "status"}),
		lookupCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Total point lookups by cache result.",
		}, []string{"table", "field", "result"}), // result: hit, miss
		extractDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Duration of extraction runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"table", "status"}),
		extractCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_runs_total",
			Help:      "Total extraction runs by outcome.",
		}, []string{"table", "status"}),
		extractRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_rows_total",
			Help:      "Total rows written to artifacts.",
		}, []string{"table"}),
		chunkDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_chunk_duration_seconds",
			Help:      "Duration of individual extraction chunks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		chunkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extract_chunk_rows_total",
			Help:      "Total rows produced by extraction chunks.",
		}, []string{"table"}),
		loadDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of loads.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"table", "mode", "status"}),
		loadCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_runs_total",
			Help:      "Total loads by mode and outcome.",
		}, []string{"table", "mode", "status"}),
		loadRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_rows_total",
			Help:      "Total rows inserted into the destination store.",
		}, []string{"table", "mode"}),
	}

	// Register all metrics with the registry.
	registry.MustRegister(r.queryDurationSeconds)
	registry.MustRegister(r.queryCounter)
	registry.MustRegister(r.lookupCounter)
	registry.MustRegister(r.extractDurationSeconds)
	registry.MustRegister(r.extractCounter)
	registry.MustRegister(r.extractRows)
	registry.MustRegister(r.chunkDurationSeconds)
	registry.MustRegister(r.chunkRows)
	registry.MustRegister(r.loadDurationSeconds)
	registry.MustRegister(r.loadCounter)
	registry.MustRegister(r.loadRows)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the registry in the text exposition format to path.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

// RecordQuery records one source query.
func (r *PrometheusRecorder) RecordQuery(ctx context.Context, table string, duration time.Duration, err error) {
	r.queryDurationSeconds.WithLabelValues(table).Observe(duration.Seconds())
	r.queryCounter.WithLabelValues(table, status(err)).Inc()
}

// RecordChunk records one completed extraction chunk.
func (r *PrometheusRecorder) RecordChunk(ctx context.Context, table string, rows int64, duration time.Duration) {
	r.chunkDurationSeconds.WithLabelValues(table).Observe(duration.Seconds())
	r.chunkRows.WithLabelValues(table).Add(float64(rows))
}

// RecordExtract records the end of an extraction run.
func (r *PrometheusRecorder) RecordExtract(ctx context.Context, table string, rows int64, duration time.Duration, err error) {
	st := status(err)
	r.extractDurationSeconds.WithLabelValues(table, st).Observe(duration.Seconds())
	r.extractCounter.WithLabelValues(table, st).Inc()
	if err == nil {
		r.extractRows.WithLabelValues(table).Add(float64(rows))
	}
	logger.Debugf("Metrics: extract '%s' %s, %d rows in %.3fs.", table, st, rows, duration.Seconds())
}

// RecordLookup records a point lookup cache hit or miss.
func (r *PrometheusRecorder) RecordLookup(ctx context.Context, table, field string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.lookupCounter.WithLabelValues(table, field, result).Inc()
}

// RecordLoad records the end of a load.
func (r *PrometheusRecorder) RecordLoad(ctx context.Context, table, mode string, rows int64, duration time.Duration, err error) {
	st := status(err)
	r.loadDurationSeconds.WithLabelValues(table, mode, st).Observe(duration.Seconds())
	r.loadCounter.WithLabelValues(table, mode, st).Inc()
	if err == nil {
		r.loadRows.WithLabelValues(table, mode).Add(float64(rows))
	}
	logger.Debugf("Metrics: load '%s' (%s) %s, %d rows in %.3fs.", table, mode, st, rows, duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
