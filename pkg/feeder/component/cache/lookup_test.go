package cache_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/feeder/pkg/feeder/component/cache"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	testutil "github.com/tigerroll/feeder/pkg/feeder/test"
)

func markerSource() *testutil.FuncSource {
	symbols := map[any]string{int64(1): "Pax6", int64(2): "Kit"}
	return &testutil.FuncSource{Fn: func(query string, args []any) (*model.RowSet, error) {
		rs := model.MustRowSet("symbol")
		if s, ok := symbols[args[0]]; ok {
			_ = rs.Append(model.Row{s})
		}
		return rs, nil
	}}
}

func TestPointLookupCache_QueriesOncePerValue(t *testing.T) {
	src := markerSource()
	c, err := cache.NewPointLookupCache(src, cache.LookupSpec{Table: "mrk_marker", SearchField: "_marker_key", ReturnField: "symbol"}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, found, err := c.Get(ctx, int64(1))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "Pax6", v)
	}
	for i := 0; i < 3; i++ {
		v, found, err := c.Get(ctx, int64(99))
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, v)
	}

	calls := src.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "SELECT symbol FROM mrk_marker WHERE _marker_key = ?", calls[0].Query)
	assert.Equal(t, int64(2), c.Queries())
	assert.Equal(t, int64(4), c.Hits())
	assert.Equal(t, 2, c.Len())
}

func TestPointLookupCache_CaseInsensitive(t *testing.T) {
	src := &testutil.FuncSource{Fn: func(query string, args []any) (*model.RowSet, error) {
		rs := model.MustRowSet("_term_key")
		if strings.ToLower(args[0].(string)) == "embryo" {
			_ = rs.Append(model.Row{int64(7)})
		}
		return rs, nil
	}}
	c, err := cache.NewPointLookupCache(src, cache.LookupSpec{Table: "voc_term", SearchField: "term", ReturnField: "_term_key", CaseInsensitive: true}, nil)
	require.NoError(t, err)

	for _, in := range []string{"Embryo", "EMBRYO", "embryo"} {
		v, found, err := c.Get(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(7), v)
	}
	calls := src.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.Contains(calls[0].Query, "LOWER(term) = LOWER(?)"))
	assert.Equal(t, []any{"Embryo"}, calls[0].Args)
}

func TestPointLookupCache_CaseInsensitiveNonASCII(t *testing.T) {
	src := testutil.NewSQLiteConnection(t, "source",
		"CREATE TABLE voc_term (_term_key int, term text)",
		"INSERT INTO voc_term VALUES (1, 'École'), (2, 'KIT')",
	)
	c, err := cache.NewPointLookupCache(src, cache.LookupSpec{Table: "voc_term", SearchField: "term", ReturnField: "_term_key", CaseInsensitive: true}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	v, found, err := c.Get(ctx, "kit")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), v)

	v, found, err = c.Get(ctx, "École")
	require.NoError(t, err)
	assert.True(t, found, "exact-case value matches whatever LOWER does to it")
	assert.Equal(t, int64(1), v)
	assert.Equal(t, int64(2), c.Queries())
}

func TestPointLookupCache_NilSearchValueIsNotQueried(t *testing.T) {
	src := markerSource()
	c, err := cache.NewPointLookupCache(src, cache.LookupSpec{Table: "t", SearchField: "k", ReturnField: "v"}, nil)
	require.NoError(t, err)
	_, found, err := c.Get(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, src.Calls())
}

func TestPointLookupCache_RejectsBadIdentifiers(t *testing.T) {
	_, err := cache.NewPointLookupCache(markerSource(), cache.LookupSpec{Table: "t; DROP TABLE x", SearchField: "k", ReturnField: "v"}, nil)
	assert.ErrorIs(t, err, exception.ErrConfig)
	_, err = cache.NewPointLookupCache(markerSource(), cache.LookupSpec{Table: "mgd.t", SearchField: "k", ReturnField: "v"}, nil)
	assert.NoError(t, err)
}

func TestPointLookupCache_SourceErrorIsNotCached(t *testing.T) {
	fail := true
	src := &testutil.FuncSource{Fn: func(string, []any) (*model.RowSet, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return model.MustRowSet("v"), nil
	}}
	c, err := cache.NewPointLookupCache(src, cache.LookupSpec{Table: "t", SearchField: "k", ReturnField: "v"}, nil)
	require.NoError(t, err)

	_, _, err = c.Get(context.Background(), "a")
	assert.ErrorIs(t, err, exception.ErrSourceQuery)

	fail = false
	_, found, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, src.Calls(), 2)
}

func TestPointLookupCache_RecordsHitsAndMisses(t *testing.T) {
	rec := new(testutil.MockRecorder)
	rec.On("RecordLookup", mock.Anything, "t", "k", false).Once()
	rec.On("RecordLookup", mock.Anything, "t", "k", true).Twice()

	c, err := cache.NewPointLookupCache(markerSource(), cache.LookupSpec{Table: "t", SearchField: "k", ReturnField: "v"}, rec)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, _, err := c.Get(context.Background(), int64(1))
		require.NoError(t, err)
	}
	rec.AssertExpectations(t)
}

func TestLookupRegistry_SharesCachePerSpec(t *testing.T) {
	reg := cache.NewLookupRegistry(markerSource(), nil)
	spec := cache.LookupSpec{Table: "t", SearchField: "k", ReturnField: "v"}
	a, err := reg.For(spec)
	require.NoError(t, err)
	b, err := reg.For(spec)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, _, _ = a.Get(context.Background(), int64(1))
	_, _, _ = b.Get(context.Background(), int64(1))
	q, h := reg.Stats()
	assert.Equal(t, int64(1), q)
	assert.Equal(t, int64(1), h)
}
