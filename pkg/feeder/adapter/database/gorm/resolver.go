package gorm

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/feeder/pkg/feeder/adapter/database"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// GormDBConnectionResolver is the GORM implementation of database.DBConnectionResolver.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider // keyed by database type (e.g., "postgres", "mysql")
	cfg         *config.Config
}

// ResolverParams defines the dependencies for NewGormDBConnectionResolver.
type ResolverParams struct {
	fx.In
	DBProviders []database.DBProvider `group:"db_providers"`
	Cfg         *config.Config
}

// NewGormDBConnectionResolver creates a new GormDBConnectionResolver.
//
// Parameters:
//
//	p: An Fx parameter struct containing every registered DBProvider and the application Config.
//
// Returns:
//
//	A new GormDBConnectionResolver instance.
func NewGormDBConnectionResolver(p ResolverParams) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider)
	for _, provider := range p.DBProviders {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{
		dbProviders: providerMap,
		cfg:         p.Cfg,
	}
}

// ResolveDBConnection resolves a database connection with the specified name.
// It attempts to reconnect if the connection fails a ping.
//
// Parameters:
//
//	ctx: The context for the operation.
//	name: The name of the database connection under adapter.database.
//
// Returns:
//
//	The resolved database.DBConnection and an error if resolution or reconnection fails.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	dbConfig, err := DecodeDatabaseConfig(r.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: %w", err)
	}

	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: DBProvider for type '%s' not found for connection '%s'", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: failed to get connection '%s': %w", name, err)
	}

	if pingErr := conn.RefreshConnection(ctx); pingErr != nil {
		logger.Warnf("DBConnectionResolver: connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		reconnectedConn, reconnectErr := provider.ForceReconnect(name)
		if reconnectErr != nil {
			return nil, fmt.Errorf("DBConnectionResolver: failed to reconnect connection '%s': %w", name, reconnectErr)
		}
		logger.Infof("DBConnectionResolver: successfully reconnected connection '%s'.", name)
		return reconnectedConn, nil
	}
	return conn, nil
}

// CloseAll closes the connections of every provider and reports every failure.
func (r *GormDBConnectionResolver) CloseAll() error {
	var merr *multierror.Error
	for dbType, p := range r.dbProviders {
		if err := p.CloseAll(); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", dbType, err))
		}
	}
	return merr.ErrorOrNil()
}
