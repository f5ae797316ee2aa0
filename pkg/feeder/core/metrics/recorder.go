// Package metrics defines the observability hooks used by extractors and loaders.
package metrics

import (
	"context"
	"time"
)

// Load modes reported to RecordLoad.
const (
	LoadModeFull  = "full"
	LoadModeByKey = "by_key"
)

// MetricRecorder is an abstract interface for recording extraction and load metrics.
//
// Implementations must be safe for concurrent use, since several tables may be processed at once.
type MetricRecorder interface {
	// RecordQuery records one source query.
	//
	// ctx: The context for the operation.
	// table: The destination table whose job issued the query.
	// duration: Wall time spent in the query.
	// err: The query error, or nil.
	RecordQuery(ctx context.Context, table string, duration time.Duration, err error)

	// RecordChunk records one completed chunk of a chunked extraction.
	RecordChunk(ctx context.Context, table string, rows int64, duration time.Duration)

	// RecordExtract records a finished extraction run, successful or not.
	//
	// ctx: The context for the operation.
	// table: The destination table.
	// rows: Rows written to the artifact. Zero on failure.
	// duration: Wall time of the whole run.
	// err: The run error, or nil.
	RecordExtract(ctx context.Context, table string, rows int64, duration time.Duration, err error)

	// RecordLookup records a point lookup, hit or miss of the cache (not of the source table).
	RecordLookup(ctx context.Context, table, field string, hit bool)

	// RecordLoad records a finished load.
	//
	// mode is LoadModeFull or LoadModeByKey.
	RecordLoad(ctx context.Context, table, mode string, rows int64, duration time.Duration, err error)
}
