package test

import (
	"context"
	"sync"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

// QueryCall records one call made to a FuncSource.
type QueryCall struct {
	Query string
	Args  []any
}

// FuncSource is a source store fake whose answers come from Fn. Every call is recorded.
type FuncSource struct {
	Fn func(query string, args []any) (*model.RowSet, error)

	mu    sync.Mutex
	calls []QueryCall
}

// Query implements the source store's Query.
func (s *FuncSource) Query(ctx context.Context, query string, args ...any) (*model.RowSet, error) {
	s.mu.Lock()
	s.calls = append(s.calls, QueryCall{Query: query, Args: args})
	s.mu.Unlock()
	return s.Fn(query, args)
}

// Calls returns the recorded calls in order.
func (s *FuncSource) Calls() []QueryCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueryCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// RowSetOf builds a RowSet from columns and rows, panicking on malformed input.
func RowSetOf(columns []string, rows ...model.Row) *model.RowSet {
	rs := model.MustRowSet(columns...)
	for _, r := range rows {
		if err := rs.Append(r); err != nil {
			panic(err)
		}
	}
	return rs
}
