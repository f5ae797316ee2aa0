// Package database defines the relational store abstraction used by extractors and loaders.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	coreAdapter "github.com/tigerroll/feeder/pkg/feeder/core/adapter"
	model "github.com/tigerroll/feeder/pkg/feeder/core/domain/model"
)

// DBExecutor defines the read and write operations the feeder issues against a relational store.
// It is implemented both by DBConnection and by the executor passed to a transaction callback.
type DBExecutor interface {
	// Query runs a parameterized SELECT and returns its result as a RowSet.
	// Placeholders are written as '?' and rebound for the dialect.
	Query(ctx context.Context, query string, args ...any) (*model.RowSet, error)

	// Exec runs a statement that returns no rows (DDL, UPDATE, ...).
	Exec(ctx context.Context, statement string, args ...any) (rowsAffected int64, err error)

	// DeleteWhere deletes every row of table where field equals value.
	DeleteWhere(ctx context.Context, table, field string, value any) (rowsAffected int64, err error)

	// DeleteAll deletes every row of table.
	DeleteAll(ctx context.Context, table string) (rowsAffected int64, err error)

	// BulkInsert inserts rows into table, batchSize rows per INSERT statement.
	BulkInsert(ctx context.Context, table string, columns []string, rows []model.Row, batchSize int) (rowsAffected int64, err error)
}

// TxFunc is executed inside a transaction. Returning an error rolls the transaction back.
type TxFunc func(tx DBExecutor) error

// DBConnection represents an abstraction of a database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection // Embeds Type(), Name(), Close()
	DBExecutor

	// Transaction runs fn in a single transaction, committing if fn returns nil.
	Transaction(ctx context.Context, fn TxFunc) error
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection verifies the connection is usable.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a database connection by its configured name.
type DBConnectionResolver interface {
	// ResolveDBConnection returns a healthy connection, reconnecting if a ping fails.
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider is responsible for providing database connections of one type based on configuration.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider (e.g., "postgres").
	Type() string
	// ForceReconnect closes and re-establishes the named connection.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the Fx value group collecting all DBProvider implementations.
const DBProviderGroup = "db_providers"
