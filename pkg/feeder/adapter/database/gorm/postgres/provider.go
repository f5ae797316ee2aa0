// Package postgres provides a GORM DBProvider implementation for PostgreSQL databases.
package postgres

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	"github.com/tigerroll/feeder/pkg/feeder/core/config"
)

// init registers the PostgreSQL dialector factory with the GORM adapter.
func init() {
	gormadapter.RegisterDialector("postgres", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// PostgresDBProvider implements database.DBProvider for PostgreSQL connections.
type PostgresDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString generates the DSN (Data Source Name) for PostgreSQL connections.
//
// Parameters:
//
//	c: The `dbconfig.DatabaseConfig` containing connection details.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	return dsn
}

// NewProvider creates a new DBProvider for PostgreSQL.
//
// Parameters:
//
//	cfg: The application's global configuration.
//
// Returns:
//
//	A PostgresDBProvider whose connections are declared under adapter.database.
func NewProvider(cfg *config.Config) *PostgresDBProvider {
	return &PostgresDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "postgres")}
}
