// Package tracing implements metrics.Tracer on OpenTelemetry.
package tracing

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// OpenTelemetryTracer starts extraction and load spans on an OpenTelemetry trace.Tracer.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a new instance of OpenTelemetryTracer.
func NewOpenTelemetryTracer(tracer trace.Tracer) *OpenTelemetryTracer {
	logger.Infof("Tracing: Initializing OpenTelemetry Tracer.")
	return &OpenTelemetryTracer{tracer: tracer}
}

// StartSpan starts a span and returns a function ending it.
// A non-nil error passed to that function is recorded and marks the span as failed.
func (t *OpenTelemetryTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attributes)...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

// toAttributes converts attributes in key order, so spans render deterministically.
func toAttributes(attributes map[string]interface{}) []attribute.KeyValue {
	if len(attributes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := attributes[k].(type) {
		case string:
			kvs = append(kvs, attribute.String(k, v))
		case bool:
			kvs = append(kvs, attribute.Bool(k, v))
		case int:
			kvs = append(kvs, attribute.Int(k, v))
		case int64:
			kvs = append(kvs, attribute.Int64(k, v))
		case float64:
			kvs = append(kvs, attribute.Float64(k, v))
		case []string:
			kvs = append(kvs, attribute.StringSlice(k, v))
		case fmt.Stringer:
			kvs = append(kvs, attribute.String(k, v.String()))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprint(v)))
		}
	}
	return kvs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
