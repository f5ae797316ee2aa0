package gorm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	sqliteprovider "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
)

func newSQLiteConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Feeder.AdapterConfigs = map[string]interface{}{
		"database": map[string]interface{}{
			"destination": map[string]interface{}{
				"type":     "sqlite",
				"database": ":memory:",
				"pool":     map[string]interface{}{"max_open_conns": "1"},
			},
			"broken": map[string]interface{}{
				"type": "oracle",
			},
		},
	}
	return cfg
}

func TestDecodeDatabaseConfig(t *testing.T) {
	cfg := newSQLiteConfig()

	dbCfg, err := gormadapter.DecodeDatabaseConfig(cfg, "destination")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dbCfg.Type)
	assert.Equal(t, 1, dbCfg.Pool.MaxOpenConns)

	_, err = gormadapter.DecodeDatabaseConfig(cfg, "nope")
	assert.Error(t, err)
}

func TestResolver_ResolvesAndCachesConnection(t *testing.T) {
	cfg := newSQLiteConfig()
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqliteprovider.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { resolver.CloseAll() })

	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, "destination")
	require.NoError(t, err)
	assert.Equal(t, "destination", conn.Name())
	assert.Equal(t, "sqlite", conn.Type())

	again, err := resolver.ResolveDBConnection(ctx, "destination")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = resolver.ResolveDBConnection(ctx, "broken")
	assert.ErrorContains(t, err, "oracle")
}
