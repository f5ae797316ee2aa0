package migration

import (
	"context"
	"io/fs"
	"os"

	"go.uber.org/fx"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

// Migrations is the destination schema migration set: a filesystem and the directory in it.
type Migrations struct {
	FS   fs.FS
	Path string
}

// NewMigrationsFromConfig reads migrations from feeder.migration.dir on disk.
func NewMigrationsFromConfig(cfg *config.Config) Migrations {
	return Migrations{FS: os.DirFS(cfg.Feeder.Migration.Dir), Path: "."}
}

// NewDestinationMigrator creates a Migrator over the destination connection.
func NewDestinationMigrator(cfg *config.Config, resolver database.DBConnectionResolver) (*Migrator, error) {
	ref := cfg.Feeder.Infrastructure.DestinationDBRef
	conn, err := resolver.ResolveDBConnection(context.Background(), ref)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to resolve destination connection '"+ref+"'", err)
	}
	return NewMigrator(conn, cfg.Feeder.Migration.Table), nil
}

// Module provides the destination Migrator and the configured migration set.
var Module = fx.Options(
	fx.Provide(NewMigrationsFromConfig),
	fx.Provide(NewDestinationMigrator),
)
