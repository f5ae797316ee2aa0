// Package extract runs table jobs against the source store: it expands query placeholders,
// collates results, applies transform steps, numbers the generated column and writes the artifact.
package extract

import (
	"context"

	"github.com/tigerroll/feeder/pkg/feeder/component/cache"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
)

// Source is the read side of the source store.
type Source interface {
	Query(ctx context.Context, query string, args ...any) (*model.RowSet, error)
}

// Step transforms a collated RowSet. Steps run in declaration order and may return a new RowSet.
type Step interface {
	Name() string
	Apply(ctx context.Context, rc *RunContext, rs *model.RowSet) (*model.RowSet, error)
}

// Collator merges the results of a job's queries, in query order, into one RowSet.
type Collator interface {
	Name() string
	Collate(ctx context.Context, rc *RunContext, results []*model.RowSet) (*model.RowSet, error)
}

// RunContext carries the state of one extraction run. Caches and counters live exactly as long
// as the run and are shared by every chunk of a chunked run.
type RunContext struct {
	RunID  string
	Job    *model.JobSpec
	Key    *model.KeyContext
	Source Source
	// Chunk is the range being extracted, nil for unchunked runs.
	Chunk *model.ChunkRange
	// Lookups memoizes point lookups against Source.
	Lookups *cache.LookupRegistry

	surrogates map[string]*cache.SurrogateKeyGenerator
	counters   map[string]map[any]int64
}

// NewRunContext creates the state for a run. recorder may be nil.
func NewRunContext(runID string, job *model.JobSpec, key *model.KeyContext, source Source, recorder metrics.MetricRecorder) *RunContext {
	return &RunContext{
		RunID:      runID,
		Job:        job,
		Key:        key,
		Source:     source,
		Lookups:    cache.NewLookupRegistry(source, recorder),
		surrogates: make(map[string]*cache.SurrogateKeyGenerator),
		counters:   make(map[string]map[any]int64),
	}
}

// Surrogates returns the named surrogate key generator, creating it with a first key of 1.
func (rc *RunContext) Surrogates(name string) *cache.SurrogateKeyGenerator {
	g, ok := rc.surrogates[name]
	if !ok {
		g = cache.NewSurrogateKeyGenerator(1)
		rc.surrogates[name] = g
	}
	return g
}

// Increment advances the named counter for group and returns its new value, starting at 1.
func (rc *RunContext) Increment(counter string, group any) int64 {
	m, ok := rc.counters[counter]
	if !ok {
		m = make(map[any]int64)
		rc.counters[counter] = m
	}
	m[group]++
	return m[group]
}
