package cache

import (
	"context"
	"fmt"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

const lookupModule = "lookup"

// identifierPattern accepts plain and schema-qualified SQL identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Querier is the part of the source store a PointLookupCache needs.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (*model.RowSet, error)
}

// LookupSpec configures a PointLookupCache.
type LookupSpec struct {
	Table       string
	SearchField string
	ReturnField string
	// CaseInsensitive matches with LOWER on both sides of the comparison, so the store does
	// the folding. Cached entries are keyed by the lower-cased search value.
	CaseInsensitive bool
}

// PointLookupCache memoizes "search value -> return value" queries against one source table.
// A value that matches no row is cached as a miss, so each distinct search value is queried at most once.
type PointLookupCache struct {
	spec     LookupSpec
	source   Querier
	recorder metrics.MetricRecorder
	query    string
	folder   cases.Caser
	entries  map[any]lookupEntry
	queries  int64
	hits     int64
}

type lookupEntry struct {
	value any
	found bool
}

// NewPointLookupCache validates spec and builds an empty cache. recorder may be nil.
func NewPointLookupCache(source Querier, spec LookupSpec, recorder metrics.MetricRecorder) (*PointLookupCache, error) {
	for _, ident := range []string{spec.Table, spec.SearchField, spec.ReturnField} {
		if !identifierPattern.MatchString(ident) {
			return nil, exception.NewConfigError(lookupModule, fmt.Sprintf("invalid identifier '%s'", ident), nil)
		}
	}
	if source == nil {
		return nil, exception.NewConfigError(lookupModule, "source store is required", nil)
	}

	where := spec.SearchField + " = ?"
	if spec.CaseInsensitive {
		where = "LOWER(" + spec.SearchField + ") = LOWER(?)"
	}
	return &PointLookupCache{
		spec:     spec,
		source:   source,
		recorder: metrics.OrNoOp(recorder),
		query:    fmt.Sprintf("SELECT %s FROM %s WHERE %s", spec.ReturnField, spec.Table, where),
		folder:   cases.Lower(language.Und),
		entries:  make(map[any]lookupEntry),
	}, nil
}

// Get resolves searchValue. found is false when no row matched; a NULL return field is found with a nil value.
// A nil searchValue never matches and is not queried.
// When several rows match, the first one returned by the source wins.
func (c *PointLookupCache) Get(ctx context.Context, searchValue any) (value any, found bool, err error) {
	if searchValue == nil {
		return nil, false, nil
	}
	key := c.normalize(searchValue)
	if e, ok := c.entries[key]; ok {
		c.hits++
		c.recorder.RecordLookup(ctx, c.spec.Table, c.spec.SearchField, true)
		return e.value, e.found, nil
	}

	c.queries++
	c.recorder.RecordLookup(ctx, c.spec.Table, c.spec.SearchField, false)
	rs, err := c.source.Query(ctx, c.query, queryArg(searchValue, key))
	if err != nil {
		return nil, false, exception.NewSourceQueryError(lookupModule,
			fmt.Sprintf("lookup of %s.%s=%v failed", c.spec.Table, c.spec.SearchField, searchValue), err)
	}

	var e lookupEntry
	if rs.Len() > 0 {
		e = lookupEntry{value: rs.Row(0)[0], found: true}
	}
	c.entries[key] = e
	return e.value, e.found, nil
}

// Queries returns how many source queries the cache issued.
func (c *PointLookupCache) Queries() int64 { return c.queries }

// Hits returns how many Get calls were served from the cache.
func (c *PointLookupCache) Hits() int64 { return c.hits }

// Len returns the number of cached search values, misses included.
func (c *PointLookupCache) Len() int { return len(c.entries) }

// Spec returns the cache configuration.
func (c *PointLookupCache) Spec() LookupSpec { return c.spec }

// queryArg binds strings as given; the cache key may have been folded.
func queryArg(v, key any) any {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return key
}

func (c *PointLookupCache) normalize(v any) any {
	switch t := v.(type) {
	case string:
		if c.spec.CaseInsensitive {
			return c.folder.String(t)
		}
		return t
	case []byte:
		return c.normalize(string(t))
	case int:
		return int64(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}
