package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
)

// Module exports the connection resolver. Concrete DB providers come from the dialect sub-packages.
var Module = fx.Options(
	fx.Provide(NewGormDBConnectionResolver),
	fx.Provide(func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r }),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error { return r.CloseAll() },
		})
	}),
)
