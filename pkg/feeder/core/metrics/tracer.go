package metrics

import "context"

// Tracer is an abstract interface for distributed tracing of extraction and load runs.
type Tracer interface {
	// StartSpan starts a span named name as a child of the span in ctx, if any.
	//
	// Returns: A context with the new span set, and a function ending the span.
	//          The function receives the operation's error so failed spans are marked as such.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func(err error))

	// RecordEvent records an event in the current span.
	//
	// ctx: The context with the current span.
	// name: The name of the event (e.g., "chunk_done").
	// attributes: Additional attributes to associate with the event.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
