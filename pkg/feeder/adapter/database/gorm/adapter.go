package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	*gormExecutor
	sqlDB  *sql.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBAdapter wraps an opened *gorm.DB as a named database.DBConnection.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB for '%s': %w", name, err)
	}
	return &GormDBAdapter{
		gormExecutor: &gormExecutor{db: db, name: name, readOnly: cfg.ReadOnly},
		sqlDB:        sqlDB,
		cfg:          cfg,
		dbType:       cfg.Type,
		name:         name,
	}, nil
}

// Close implements coreAdapter.ResourceConnection.
func (a *GormDBAdapter) Close() error {
	if a.sqlDB != nil {
		logger.Infof("Closing database connection '%s'...", a.name)
		return a.sqlDB.Close()
	}
	return nil
}

// Type implements coreAdapter.ResourceConnection.
func (a *GormDBAdapter) Type() string {
	return a.dbType
}

// Name implements coreAdapter.ResourceConnection.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// Transaction implements database.DBConnection.
func (a *GormDBAdapter) Transaction(ctx context.Context, fn database.TxFunc) error {
	if a.readOnly {
		return fmt.Errorf("connection '%s' is read-only", a.name)
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormExecutor{db: tx, name: a.name})
	})
}

// IsTableNotExistError implements database.DBConnection.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return isTableNotExistError(err)
}

// RefreshConnection implements database.DBConnection.
func (a *GormDBAdapter) RefreshConnection(ctx context.Context) error {
	if a.sqlDB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return a.sqlDB.PingContext(ctx)
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
