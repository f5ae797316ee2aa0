package sqlite

import (
	"go.uber.org/fx"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
)

// Module exports the sqlite DBProvider for dependency injection.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.As(new(database.DBProvider)),
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
