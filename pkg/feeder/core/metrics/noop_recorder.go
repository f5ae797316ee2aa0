package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

// RecordQuery does nothing.
func (r *NoOpMetricRecorder) RecordQuery(ctx context.Context, table string, duration time.Duration, err error) {
}

// RecordChunk does nothing.
func (r *NoOpMetricRecorder) RecordChunk(ctx context.Context, table string, rows int64, duration time.Duration) {
}

// RecordExtract does nothing.
func (r *NoOpMetricRecorder) RecordExtract(ctx context.Context, table string, rows int64, duration time.Duration, err error) {
}

// RecordLookup does nothing.
func (r *NoOpMetricRecorder) RecordLookup(ctx context.Context, table, field string, hit bool) {}

// RecordLoad does nothing.
func (r *NoOpMetricRecorder) RecordLoad(ctx context.Context, table, mode string, rows int64, duration time.Duration, err error) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is an implementation of Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new instance of NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

// StartSpan returns ctx unchanged.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func(err error)) {
	return ctx, func(error) {}
}

// RecordEvent does nothing.
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)

// OrNoOp returns r, or a NoOpMetricRecorder when r is nil.
func OrNoOp(r MetricRecorder) MetricRecorder {
	if r == nil {
		return NewNoOpMetricRecorder()
	}
	return r
}

// TracerOrNoOp returns t, or a NoOpTracer when t is nil.
func TracerOrNoOp(t Tracer) Tracer {
	if t == nil {
		return NewNoOpTracer()
	}
	return t
}
