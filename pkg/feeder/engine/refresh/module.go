package refresh

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/engine/pipeline"
)

// NewServiceFromConfig creates the Service with feeder.refresh.parallelism.
func NewServiceFromConfig(cfg *config.Config, pipelines []*pipeline.Pipeline) (*Service, error) {
	return NewService(pipelines, cfg.Feeder.Refresh.Parallelism)
}

// Module provides the refresh Service.
var Module = fx.Options(
	fx.Provide(NewServiceFromConfig),
)
