// Package pipeline assembles table jobs into runnable pipelines: an extractor producing the
// table's artifact and a loader applying it to the destination store.
package pipeline

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	"github.com/tigerroll/feeder/pkg/feeder/component/artifact"
	"github.com/tigerroll/feeder/pkg/feeder/component/schema"
	"github.com/tigerroll/feeder/pkg/feeder/component/step"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/core/config/jsl"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/engine/extract"
	"github.com/tigerroll/feeder/pkg/feeder/engine/load"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/configbinder"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "pipeline"

// Pipeline derives and loads one destination table.
type Pipeline struct {
	Table  string
	Runner extract.Runner
	Loader *load.Loader
}

// Builder turns table job definitions into pipelines.
type Builder struct {
	cfg       *config.Config
	registry  *step.Registry
	source    extract.Source
	dest      database.DBConnection
	storage   storage.StorageExecutor
	artifacts *artifact.Store
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
}

// NewBuilder creates a Builder. Artifacts are read back by loaders in the format configured
// under feeder.artifact.
func NewBuilder(
	cfg *config.Config,
	registry *step.Registry,
	source extract.Source,
	dest database.DBConnection,
	store storage.StorageExecutor,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
) (*Builder, error) {
	format, err := artifactFormat(cfg, false)
	if err != nil {
		return nil, err
	}
	artifacts, err := artifact.NewStore(store, cfg.Feeder.Artifact.Bucket, format)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to create artifact store", err)
	}
	return &Builder{
		cfg:       cfg,
		registry:  registry,
		source:    source,
		dest:      dest,
		storage:   store,
		artifacts: artifacts,
		recorder:  metrics.OrNoOp(recorder),
		tracer:    metrics.TracerOrNoOp(tracer),
	}, nil
}

// Artifacts returns the store pipelines read artifacts from.
func (b *Builder) Artifacts() *artifact.Store { return b.artifacts }

// BuildAll builds a pipeline per table, in document order. Every failing table is reported.
func (b *Builder) BuildAll(doc *jsl.Document) ([]*Pipeline, error) {
	var merr *multierror.Error
	pipelines := make([]*Pipeline, 0, len(doc.Tables))
	for _, t := range doc.Tables {
		p, err := b.Build(t)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		pipelines = append(pipelines, p)
	}
	if err := merr.ErrorOrNil(); err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to build pipelines", err)
	}
	logger.Infof("Built %d table pipelines.", len(pipelines))
	return pipelines, nil
}

// Build creates the extractor and loader of one table.
func (b *Builder) Build(t jsl.Table) (*Pipeline, error) {
	runner, err := b.buildRunner(t)
	if err != nil {
		return nil, err
	}
	loader, err := b.buildLoader(t)
	if err != nil {
		return nil, err
	}
	logger.Debugf("Pipeline for table '%s' built (chunked: %t, keys: %v).", t.Name, t.Chunk != nil, keyNames(t))
	return &Pipeline{Table: t.Name, Runner: runner, Loader: loader}, nil
}

func (b *Builder) buildRunner(t jsl.Table) (extract.Runner, error) {
	job, err := t.JobSpec()
	if err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("invalid table '%s'", t.Name), err)
	}
	format, err := artifactFormat(b.cfg, t.Trusting)
	if err != nil {
		return nil, err
	}
	writer, err := artifact.NewWriter(b.storage, b.cfg.Feeder.Artifact.Bucket, format)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to create artifact writer", err)
	}

	opts := []extract.Option{extract.WithRecorder(b.recorder), extract.WithTracer(b.tracer)}
	if t.Collate != nil {
		collator, err := b.registry.BuildCollator(t.Collate.Ref, t.Collate.Properties)
		if err != nil {
			return nil, tableError(t.Name, err)
		}
		opts = append(opts, extract.WithCollator(collator))
	}
	steps := make([]extract.Step, 0, len(t.Steps))
	for _, ref := range t.Steps {
		s, err := b.registry.BuildStep(ref.Ref, ref.Properties)
		if err != nil {
			return nil, tableError(t.Name, err)
		}
		steps = append(steps, s)
	}
	opts = append(opts, extract.WithSteps(steps...))

	if t.Chunk == nil {
		e, err := extract.NewExtractor(job, b.source, writer, opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	size := t.Chunk.Size
	if size == 0 {
		size = b.cfg.Feeder.Extract.ChunkSize
	}
	c, err := extract.NewChunkedExtractor(job, extract.ChunkSpec{
		Size:     size,
		MinQuery: t.Chunk.MinQuery,
		MaxQuery: t.Chunk.MaxQuery,
		KeyExpr:  t.Chunk.KeyExpr,
	}, b.source, writer, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *Builder) buildLoader(t jsl.Table) (*load.Loader, error) {
	batchSize := t.Load.BatchSize
	if batchSize == 0 {
		batchSize = b.cfg.Feeder.Load.BatchSize
	}
	opts := []load.Option{
		load.WithBatchSize(batchSize),
		load.WithRemoveArtifact(b.cfg.Feeder.Load.RemoveArtifact),
		load.WithRecorder(b.recorder),
		load.WithTracer(b.tracer),
	}
	for field, ref := range t.LoadKeys() {
		if ref.Statement != "" {
			opts = append(opts, load.WithKey(field, load.StatementKey{Statement: ref.Statement, Column: ref.CheckColumn}))
		} else {
			opts = append(opts, load.WithKey(field, load.ColumnKey{Column: ref.Column}))
		}
	}
	if t.Schema != nil {
		table, err := b.tableSchema(t)
		if err != nil {
			return nil, err
		}
		opts = append(opts, load.WithMetadata(table))
	}
	return load.NewLoader(b.dest, b.artifacts, opts...)
}

// tableSchema decodes the table's schema section. The table name defaults to the job name.
func (b *Builder) tableSchema(t jsl.Table) (*schema.Table, error) {
	table := &schema.Table{}
	if err := configbinder.BindProperties(t.Schema, table); err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("invalid schema of table '%s'", t.Name), err)
	}
	if table.Name == "" {
		table.Name = t.Name
	}
	if table.Name != t.Name {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("schema of table '%s' names table '%s'", t.Name, table.Name), nil)
	}
	table.Dialect = b.dest.Type()
	if err := table.Validate(); err != nil {
		return nil, exception.NewConfigError(moduleName, fmt.Sprintf("invalid schema of table '%s'", t.Name), err)
	}
	return table, nil
}

func artifactFormat(cfg *config.Config, trusting bool) (artifact.Format, error) {
	a := cfg.Feeder.Artifact
	format, err := artifact.NewFormat(a.Delimiter, a.NullToken, a.Trusting || trusting)
	if err != nil {
		return artifact.Format{}, exception.NewConfigError(moduleName, "invalid artifact format", err)
	}
	return format, nil
}

func tableError(table string, err error) error {
	return exception.NewConfigError(moduleName, fmt.Sprintf("table '%s'", table), err)
}

func keyNames(t jsl.Table) []string {
	names := make([]string, 0, len(t.KeyFields))
	for field := range t.KeyFields {
		names = append(names, field)
	}
	return names
}
