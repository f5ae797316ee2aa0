package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// MetricEvent represents a metric event to be recorded asynchronously.
type MetricEvent struct {
	Type     string
	Table    string
	Field    string // For lookup events
	Mode     string // For load events
	Rows     int64
	Hit      bool
	Duration time.Duration
	Err      error
}

// Metric event type constants
const (
	MetricEventTypeQuery   = "query"
	MetricEventTypeChunk   = "chunk"
	MetricEventTypeExtract = "extract"
	MetricEventTypeLookup  = "lookup"
	MetricEventTypeLoad    = "load"
)

// DefaultAsyncBufferSize is used when a non-positive buffer size is requested.
const DefaultAsyncBufferSize = 100

// AsyncMetricRecorder asynchronously records metrics by pushing events to a channel
// and processing them in a separate goroutine.
type AsyncMetricRecorder struct {
	eventQueue   chan MetricEvent
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	syncRecorder metrics.MetricRecorder // The recorder performing the actual recording
}

// NewAsyncMetricRecorder creates a new asynchronous metric recorder.
//
// Parameters:
//   bufferSize: The buffer size for the event queue. If 0 or less, DefaultAsyncBufferSize is used.
//   syncRec: The synchronous recorder that performs the actual metric recording.
func NewAsyncMetricRecorder(bufferSize int, syncRec metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	r := &AsyncMetricRecorder{
		eventQueue:   make(chan MetricEvent, bufferSize),
		stopCh:       make(chan struct{}),
		syncRecorder: syncRec,
	}
	r.wg.Add(1)
	go r.run()
	logger.Debugf("AsyncMetricRecorder: Worker goroutine started (buffer size: %d).", bufferSize)
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case event := <-r.eventQueue:
			r.processEvent(event)
		case <-r.stopCh:
			// Drain what was queued before the stop signal.
			remaining := len(r.eventQueue)
			for i := 0; i < remaining; i++ {
				r.processEvent(<-r.eventQueue)
			}
			logger.Debugf("AsyncMetricRecorder: Worker goroutine stopped. Processed %d remaining events.", remaining)
			return
		}
	}
}

func (r *AsyncMetricRecorder) processEvent(event MetricEvent) {
	// The caller's context may be gone by now.
	ctx := context.Background()
	switch event.Type {
	case MetricEventTypeQuery:
		r.syncRecorder.RecordQuery(ctx, event.Table, event.Duration, event.Err)
	case MetricEventTypeChunk:
		r.syncRecorder.RecordChunk(ctx, event.Table, event.Rows, event.Duration)
	case MetricEventTypeExtract:
		r.syncRecorder.RecordExtract(ctx, event.Table, event.Rows, event.Duration, event.Err)
	case MetricEventTypeLookup:
		r.syncRecorder.RecordLookup(ctx, event.Table, event.Field, event.Hit)
	case MetricEventTypeLoad:
		r.syncRecorder.RecordLoad(ctx, event.Table, event.Mode, event.Rows, event.Duration, event.Err)
	default:
		logger.Warnf("AsyncMetricRecorder: Unknown metric event type: %s", event.Type)
	}
}

// Close stops the worker after it has processed every queued event. It is safe to call more than once.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() {
		logger.Debugf("AsyncMetricRecorder: Sending shutdown signal...")
		close(r.stopCh)
		r.wg.Wait()
		logger.Debugf("AsyncMetricRecorder: Shutdown complete.")
	})
}

// sendEvent queues an event, discarding it with a warning when the queue is full.
func (r *AsyncMetricRecorder) sendEvent(event MetricEvent) {
	select {
	case r.eventQueue <- event:
	default:
		logger.Warnf("AsyncMetricRecorder: Event queue is full (type: %s, table: %s). Event discarded.", event.Type, event.Table)
	}
}

// RecordQuery implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordQuery(ctx context.Context, table string, duration time.Duration, err error) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeQuery, Table: table, Duration: duration, Err: err})
}

// RecordChunk implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordChunk(ctx context.Context, table string, rows int64, duration time.Duration) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeChunk, Table: table, Rows: rows, Duration: duration})
}

// RecordExtract implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordExtract(ctx context.Context, table string, rows int64, duration time.Duration, err error) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeExtract, Table: table, Rows: rows, Duration: duration, Err: err})
}

// RecordLookup implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordLookup(ctx context.Context, table, field string, hit bool) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeLookup, Table: table, Field: field, Hit: hit})
}

// RecordLoad implements metrics.MetricRecorder.
func (r *AsyncMetricRecorder) RecordLoad(ctx context.Context, table, mode string, rows int64, duration time.Duration, err error) {
	r.sendEvent(MetricEvent{Type: MetricEventTypeLoad, Table: table, Mode: mode, Rows: rows, Duration: duration, Err: err})
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)
