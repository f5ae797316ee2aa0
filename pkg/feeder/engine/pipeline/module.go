package pipeline

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage"
	"github.com/tigerroll/feeder/pkg/feeder/component/step"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/core/config/jsl"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

// BuilderParams defines the dependencies for NewBuilderFromParams.
type BuilderParams struct {
	fx.In
	Config   *config.Config
	Registry *step.Registry
	Resolver database.DBConnectionResolver
	Storage  storage.StorageConnection
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewBuilderFromParams resolves the source and destination connections named under
// feeder.infrastructure and creates a Builder over them.
func NewBuilderFromParams(p BuilderParams) (*Builder, error) {
	ctx := context.Background()
	infra := p.Config.Feeder.Infrastructure
	source, err := p.Resolver.ResolveDBConnection(ctx, infra.SourceDBRef)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to resolve source connection '"+infra.SourceDBRef+"'", err)
	}
	dest, err := p.Resolver.ResolveDBConnection(ctx, infra.DestinationDBRef)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to resolve destination connection '"+infra.DestinationDBRef+"'", err)
	}
	return NewBuilder(p.Config, p.Registry, source, dest, p.Storage, p.Recorder, p.Tracer)
}

// NewPipelines builds the pipelines of every table in the job document.
func NewPipelines(b *Builder, doc *jsl.Document) ([]*Pipeline, error) {
	return b.BuildAll(doc)
}

// Module provides the pipeline builder and the pipelines of the job document.
// A *jsl.Document must be supplied by the application.
var Module = fx.Options(
	step.Module,
	fx.Provide(NewBuilderFromParams),
	fx.Provide(NewPipelines),
)
