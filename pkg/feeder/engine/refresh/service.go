// Package refresh rebuilds destination tables and refreshes the rows of single entities.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/engine/pipeline"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "refresh"

// Result reports one table's extract and load.
type Result struct {
	Table    string
	Key      *model.KeyContext
	Artifact string
	Rows     int64
	Duration time.Duration
}

// Service runs table pipelines by name.
type Service struct {
	pipelines   map[string]*pipeline.Pipeline
	order       []string
	parallelism int
}

// NewService creates a Service over pipelines. Table names must be unique.
// parallelism bounds concurrent tables in RebuildAll; values below 1 mean 1.
func NewService(pipelines []*pipeline.Pipeline, parallelism int) (*Service, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	s := &Service{
		pipelines:   make(map[string]*pipeline.Pipeline, len(pipelines)),
		order:       make([]string, 0, len(pipelines)),
		parallelism: parallelism,
	}
	for _, p := range pipelines {
		if _, dup := s.pipelines[p.Table]; dup {
			return nil, exception.NewConfigError(moduleName, fmt.Sprintf("table '%s' has two pipelines", p.Table), nil)
		}
		s.pipelines[p.Table] = p
		s.order = append(s.order, p.Table)
	}
	return s, nil
}

// Tables returns the table names in declaration order.
func (s *Service) Tables() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Rebuild extracts the whole of table and replaces its destination rows.
func (s *Service) Rebuild(ctx context.Context, table string) (*Result, error) {
	p, err := s.pipeline(table)
	if err != nil {
		return nil, err
	}
	return run(ctx, p, nil)
}

// Refresh re-derives and reloads only the rows of table associated with keyField = keyValue.
func (s *Service) Refresh(ctx context.Context, table, keyField string, keyValue any) (*Result, error) {
	p, err := s.pipeline(table)
	if err != nil {
		return nil, err
	}
	if !accepts(p, keyField) {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("table '%s' cannot be refreshed by '%s'", table, keyField), nil)
	}
	return run(ctx, p, &model.KeyContext{Field: keyField, Value: keyValue})
}

// RefreshAll refreshes every table recognizing keyField, in declaration order.
// A failing table does not stop the others; all failures are returned together.
func (s *Service) RefreshAll(ctx context.Context, keyField string, keyValue any) ([]*Result, error) {
	var (
		results []*Result
		errs    error
	)
	key := &model.KeyContext{Field: keyField, Value: keyValue}
	for _, table := range s.order {
		p := s.pipelines[table]
		if !accepts(p, keyField) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = exception.Append(errs, err)
			break
		}
		res, err := run(ctx, p, key)
		if err != nil {
			logger.Errorf("Refresh of '%s' (%s) failed: %v", table, key.String(), err)
			errs = exception.Append(errs, err)
			continue
		}
		results = append(results, res)
	}
	if results == nil && errs == nil {
		logger.Warnf("No table recognizes key field '%s'.", keyField)
	}
	return results, errs
}

// RebuildAll rebuilds tables, or every table when none are named, up to the configured
// parallelism at a time. A table named more than once is rebuilt once.
// Every table is attempted; failures are returned together.
func (s *Service) RebuildAll(ctx context.Context, tables ...string) ([]*Result, error) {
	if len(tables) == 0 {
		tables = s.order
	}
	seen := make(map[string]bool, len(tables))
	pipelines := make([]*pipeline.Pipeline, 0, len(tables))
	for _, table := range tables {
		if seen[table] {
			continue
		}
		seen[table] = true
		p, err := s.pipeline(table)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	results := make([]*Result, len(pipelines))
	g.SetLimit(s.parallelism)
	for i, p := range pipelines {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = exception.Append(errs, fmt.Errorf("rebuild of '%s' not started: %w", p.Table, err))
				mu.Unlock()
				return nil
			}
			res, err := run(ctx, p, nil)
			if err != nil {
				logger.Errorf("Rebuild of '%s' failed: %v", p.Table, err)
				mu.Lock()
				errs = exception.Append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	done := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}
	return done, errs
}

func (s *Service) pipeline(table string) (*pipeline.Pipeline, error) {
	p, ok := s.pipelines[table]
	if !ok {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("unknown table '%s'", table), nil)
	}
	return p, nil
}

// accepts reports whether both the extraction and the load of p can be scoped by keyField.
func accepts(p *pipeline.Pipeline, keyField string) bool {
	_, ok := p.Runner.Job().KeyFields[keyField]
	return ok && p.Loader.HasKey(keyField)
}

func run(ctx context.Context, p *pipeline.Pipeline, key *model.KeyContext) (*Result, error) {
	start := time.Now()
	handle, err := p.Runner.Run(ctx, key)
	if err != nil {
		return nil, err
	}
	rows, err := p.Loader.Load(ctx, handle)
	if err != nil {
		return nil, err
	}
	res := &Result{Table: p.Table, Key: key, Artifact: handle.Name, Rows: rows, Duration: time.Since(start)}
	logger.Infof("Table '%s' (%s) loaded: %d rows in %s.", p.Table, key.String(), rows, res.Duration.Round(time.Millisecond))
	return res, nil
}
