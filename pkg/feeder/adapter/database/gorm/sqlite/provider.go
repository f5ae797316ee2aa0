// Package sqlite provides a GORM DBProvider implementation for SQLite databases.
package sqlite

import (
	"errors"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	"github.com/tigerroll/feeder/pkg/feeder/core/config"
)

// init registers the SQLite dialector factory with the GORM adapter.
func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(cfg.Database), nil
	})
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
// An in-memory database (":memory:") should be used with pool.max_open_conns set to 1.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates a new DBProvider for SQLite.
func NewProvider(cfg *config.Config) *SQLiteDBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "sqlite")}
}
