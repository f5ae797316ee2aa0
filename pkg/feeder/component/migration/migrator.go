// Package migration applies destination schema migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const moduleName = "migration"

// DefaultMigrationsTable records the applied version when none is configured.
const DefaultMigrationsTable = "feeder_schema_migrations"

// Migrator applies the migrations found under a directory of an fs.FS.
//
// golang-migrate closes the *sql.DB it was given when a run finishes, so a Migrator must
// be given a connection dedicated to migrating.
type Migrator struct {
	conn  database.DBConnection
	table string
}

// NewMigrator creates a Migrator recording versions in table.
func NewMigrator(conn database.DBConnection, table string) *Migrator {
	if table == "" {
		table = DefaultMigrationsTable
	}
	return &Migrator{conn: conn, table: table}
}

// Up applies all pending migrations. No pending migration is not an error.
func (m *Migrator) Up(ctx context.Context, migrationFS fs.FS, path string) error {
	return m.run(ctx, migrationFS, path, "up", func(mi *migrate.Migrate) error { return mi.Up() })
}

// Down rolls back all applied migrations.
func (m *Migrator) Down(ctx context.Context, migrationFS fs.FS, path string) error {
	return m.run(ctx, migrationFS, path, "down", func(mi *migrate.Migrate) error { return mi.Down() })
}

// Steps applies n migrations, or rolls back -n when n is negative.
func (m *Migrator) Steps(ctx context.Context, migrationFS fs.FS, path string, n int) error {
	return m.run(ctx, migrationFS, path, fmt.Sprintf("steps %d", n), func(mi *migrate.Migrate) error { return mi.Steps(n) })
}

// Version returns the applied version and whether the last migration failed halfway.
// A database without applied migrations returns version 0.
func (m *Migrator) Version(ctx context.Context, migrationFS fs.FS, path string) (version uint, dirty bool, err error) {
	err = m.run(ctx, migrationFS, path, "version", func(mi *migrate.Migrate) error {
		v, d, verr := mi.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			return nil
		}
		version, dirty = v, d
		return verr
	})
	return version, dirty, err
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.conn.Type() {
	case "postgres", "redshift":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.table})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: m.table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

func (m *Migrator) instance(migrationFS fs.FS, path string) (*migrate.Migrate, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}
	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		sourceDriver.Close()
		return nil, err
	}
	mi, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mi, nil
}

func (m *Migrator) run(ctx context.Context, migrationFS fs.FS, path, command string, fn func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' on '%s' (Path: %s, Table: %s)", command, m.conn.Name(), path, m.table)

	mi, err := m.instance(migrationFS, path)
	if err != nil {
		return exception.NewConfigError(moduleName, "failed to prepare migration", err)
	}
	defer func() {
		if srcErr, dbErr := mi.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("Closing migration '%s' failed: source: %v, database: %v", command, srcErr, dbErr)
		}
	}()

	// Stop after the running migration once ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mi.GracefulStop <- true
		case <-done:
		}
	}()

	if err := fn(mi); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return exception.NewLoadError(moduleName, fmt.Sprintf("migration '%s' failed (DB: %s, Path: %s)", command, m.conn.Type(), path), err)
	}
	logger.Infof("Migration '%s' completed successfully.", command)
	return nil
}
