package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/database"
	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
)

// DefaultConnectionName names the single metadata connection.
const DefaultConnectionName = "metadata"

// NewConnection opens the configured database and closes it on shutdown.
func NewConnection(lc fx.Lifecycle, cfg *config.Config) (database.DBConnection, error) {
	conn, err := Open(cfg.ETL.Database, DefaultConnectionName)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return conn.Close()
		},
	})
	return conn, nil
}

// Module provides database.DBConnection. Import the dialect sub-packages to register drivers.
var Module = fx.Options(
	fx.Provide(NewConnection),
)
