package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
)

// NewSQLiteConnection opens a private in-memory SQLite database as a named connection.
// The pool is limited to one connection so every statement sees the same database.
func NewSQLiteConnection(t testing.TB, name string, statements ...string) *gormadapter.GormDBAdapter {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	conn, err := gormadapter.NewGormDBAdapter(gormDB, dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, name)
	require.NoError(t, err)

	for _, stmt := range statements {
		_, err := conn.Exec(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
	return conn
}
