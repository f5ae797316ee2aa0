package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/feeder/pkg/feeder/component/artifact"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "extract"

// Runner produces an artifact for a table, optionally scoped to one key.
type Runner interface {
	// Job returns the job the runner extracts.
	Job() *model.JobSpec
	// Run extracts and publishes the artifact. A nil key extracts the whole table.
	Run(ctx context.Context, key *model.KeyContext) (*model.ArtifactHandle, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCollator replaces the default SingleCollator.
func WithCollator(c Collator) Option {
	return func(e *Extractor) { e.collator = c }
}

// WithSteps appends transform steps, applied in order.
func WithSteps(steps ...Step) Option {
	return func(e *Extractor) { e.steps = append(e.steps, steps...) }
}

// WithRecorder sets the metric recorder.
func WithRecorder(r metrics.MetricRecorder) Option {
	return func(e *Extractor) { e.recorder = metrics.OrNoOp(r) }
}

// WithTracer sets the tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(e *Extractor) { e.tracer = metrics.TracerOrNoOp(t) }
}

// Extractor runs one JobSpec against the source store and writes its artifact.
// Each Run builds fresh caches, so runs never share lookup or surrogate state.
type Extractor struct {
	job      *model.JobSpec
	source   Source
	writer   *artifact.Writer
	collator Collator
	steps    []Step
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	// rangeExpr is set by ChunkedExtractor.
	rangeExpr string
}

// NewExtractor validates the job's query templates and builds an Extractor.
func NewExtractor(job *model.JobSpec, source Source, writer *artifact.Writer, opts ...Option) (*Extractor, error) {
	if job == nil || source == nil || writer == nil {
		return nil, exception.NewConfigError(moduleName, "job, source and writer are required", nil)
	}
	for i, q := range job.Queries {
		if err := validateTemplate(q); err != nil {
			return nil, exception.NewConfigError(moduleName, fmt.Sprintf("job '%s' query %d", job.Name, i), err)
		}
	}
	e := &Extractor{
		job:      job,
		source:   source,
		writer:   writer,
		collator: SingleCollator{},
		recorder: metrics.NewNoOpMetricRecorder(),
		tracer:   metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Job implements Runner.
func (e *Extractor) Job() *model.JobSpec { return e.job }

// Run implements Runner. Nothing is published unless every query, step and write succeeds;
// an empty result publishes a header-only artifact.
func (e *Extractor) Run(ctx context.Context, key *model.KeyContext) (handle *model.ArtifactHandle, err error) {
	start := time.Now()
	if err := e.checkKey(key); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	ctx, end := e.tracer.StartSpan(ctx, "extract."+e.job.Name, map[string]interface{}{
		"table": e.job.Name, "key": key.String(), "run_id": runID,
	})
	defer func() {
		var rows int64
		if handle != nil {
			rows = handle.Rows
		}
		e.recorder.RecordExtract(ctx, e.job.Name, rows, time.Since(start), err)
		end(err)
	}()

	logger.Infof("Extract '%s' (%s) started. run_id=%s", e.job.Name, key.String(), runID)
	rc := NewRunContext(runID, e.job, key, e.source, e.recorder)

	rs, err := e.extractOnce(ctx, rc, 0)
	if err != nil {
		logger.Errorf("Extract '%s' (%s) failed: %v", e.job.Name, key.String(), err)
		return nil, err
	}

	name := artifact.Name(e.job.Name, key)
	rows, err := e.writer.Write(ctx, name, rs)
	if err != nil {
		logger.Errorf("Extract '%s' (%s) failed to write '%s': %v", e.job.Name, key.String(), name, err)
		return nil, err
	}
	logger.Infof("Extract '%s' (%s) finished: %d rows -> '%s' in %s.", e.job.Name, key.String(), rows, name, time.Since(start))
	return &model.ArtifactHandle{Name: name, Table: e.job.Name, Key: key, Columns: rs.Columns(), Rows: rows}, nil
}

func (e *Extractor) checkKey(key *model.KeyContext) error {
	if key == nil {
		return nil
	}
	if _, ok := e.job.KeyFields[key.Field]; !ok {
		return exception.NewConfigError(moduleName,
			fmt.Sprintf("job '%s' cannot be scoped by unknown key field '%s'", e.job.Name, key.Field), nil)
	}
	if key.Value == nil {
		return exception.NewConfigError(moduleName,
			fmt.Sprintf("job '%s' key field '%s' has no value", e.job.Name, key.Field), nil)
	}
	for i, q := range e.job.Queries {
		if !placeholders(q)[keyPlaceholder] {
			return exception.NewConfigError(moduleName,
				fmt.Sprintf("job '%s' query %d has no {{key}} placeholder and cannot be scoped", e.job.Name, i), nil)
		}
	}
	return nil
}

// extractOnce runs the queries for rc's key and chunk, collates, applies steps and shapes the
// result into the job's column order. offset is the number of rows already produced by earlier chunks.
func (e *Extractor) extractOnce(ctx context.Context, rc *RunContext, offset int64) (*model.RowSet, error) {
	results := make([]*model.RowSet, 0, len(e.job.Queries))
	keyExpr := ""
	if rc.Key != nil {
		keyExpr = e.job.KeyFields[rc.Key.Field]
	}
	for i, tmpl := range e.job.Queries {
		q, args, err := expandQuery(tmpl, rc.Key, keyExpr, rc.Chunk, e.rangeExpr)
		if err != nil {
			return nil, exception.NewConfigError(moduleName, fmt.Sprintf("job '%s' query %d", e.job.Name, i), err)
		}
		qStart := time.Now()
		rs, err := e.source.Query(ctx, q, args...)
		e.recorder.RecordQuery(ctx, e.job.Name, time.Since(qStart), err)
		if err != nil {
			return nil, exception.NewSourceQueryError(moduleName, fmt.Sprintf("job '%s' query %d failed", e.job.Name, i), err)
		}
		logger.Debugf("Extract '%s' query %d returned %d rows.", e.job.Name, i, rs.Len())
		results = append(results, rs)
	}

	rs, err := e.collator.Collate(ctx, rc, results)
	if err != nil {
		return nil, asTransformError(fmt.Sprintf("job '%s' collator '%s'", e.job.Name, e.collator.Name()), err)
	}
	for _, step := range e.steps {
		if rs, err = step.Apply(ctx, rc, rs); err != nil {
			return nil, asTransformError(fmt.Sprintf("job '%s' step '%s'", e.job.Name, step.Name()), err)
		}
		if rs == nil {
			return nil, exception.NewTransformError(moduleName, fmt.Sprintf("job '%s' step '%s' returned no rows object", e.job.Name, step.Name()), nil)
		}
	}
	return e.shape(rs, offset)
}

// shape projects rs onto the job's named columns and inserts the generated sequence column,
// numbered offset+1.. in row order.
func (e *Extractor) shape(rs *model.RowSet, offset int64) (*model.RowSet, error) {
	named := make([]string, 0, len(e.job.Columns))
	for _, c := range e.job.Columns {
		if !c.Generated {
			named = append(named, c.Name)
		}
	}
	out, err := rs.Project(named...)
	if err != nil {
		return nil, exception.NewTransformError(moduleName,
			fmt.Sprintf("job '%s' result does not provide the declared columns", e.job.Name), err)
	}
	if pos, col, ok := e.job.GeneratedColumn(); ok {
		err := out.InsertColumn(pos, col.Name, func(i int, _ model.Row) (any, error) {
			return offset + int64(i) + 1, nil
		})
		if err != nil {
			return nil, exception.NewTransformError(moduleName,
				fmt.Sprintf("job '%s' generated column '%s'", e.job.Name, col.Name), err)
		}
	}
	return out, nil
}

// asTransformError keeps typed errors (a lookup's SourceQueryError stays one) and wraps the rest.
func asTransformError(msg string, err error) error {
	if exception.IsFeederError(err) {
		return err
	}
	return exception.NewTransformError(moduleName, msg, err)
}

var _ Runner = (*Extractor)(nil)
