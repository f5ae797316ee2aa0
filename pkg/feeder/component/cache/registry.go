package cache

import (
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
)

// LookupRegistry hands out one PointLookupCache per LookupSpec for the lifetime of a run,
// so steps resolving the same table and fields share cached values.
type LookupRegistry struct {
	source   Querier
	recorder metrics.MetricRecorder
	caches   map[LookupSpec]*PointLookupCache
}

// NewLookupRegistry creates an empty registry over source.
func NewLookupRegistry(source Querier, recorder metrics.MetricRecorder) *LookupRegistry {
	return &LookupRegistry{
		source:   source,
		recorder: recorder,
		caches:   make(map[LookupSpec]*PointLookupCache),
	}
}

// For returns the cache for spec, creating it on first use.
func (r *LookupRegistry) For(spec LookupSpec) (*PointLookupCache, error) {
	if c, ok := r.caches[spec]; ok {
		return c, nil
	}
	c, err := NewPointLookupCache(r.source, spec, r.recorder)
	if err != nil {
		return nil, err
	}
	r.caches[spec] = c
	return c, nil
}

// Stats returns the total number of source queries and cache hits across all caches.
func (r *LookupRegistry) Stats() (queries, hits int64) {
	for _, c := range r.caches {
		queries += c.Queries()
		hits += c.Hits()
	}
	return queries, hits
}
