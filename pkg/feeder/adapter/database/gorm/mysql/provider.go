// Package mysql provides a GORM DBProvider implementation for MySQL databases.
package mysql

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/feeder/pkg/feeder/adapter/database/config"
	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	"github.com/tigerroll/feeder/pkg/feeder/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// MySQLDBProvider implements database.DBProvider for MySQL connections.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// ConnectionString generates the DSN for MySQL connections.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// NewProvider creates a new MySQL DBProvider.
func NewProvider(cfg *config.Config) *MySQLDBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, "mysql")}
}
