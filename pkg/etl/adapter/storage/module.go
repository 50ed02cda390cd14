package storage

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
)

// DefaultConnectionName names the connection used for uploads and exports.
const DefaultConnectionName = "exports"

// NewConnection opens the configured backend and closes it on shutdown.
func NewConnection(lc fx.Lifecycle, cfg *config.Config) (StorageConnection, error) {
	conn, err := Open(context.Background(), cfg.ETL.Storage, DefaultConnectionName)
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

// Module provides StorageConnection. Import the local or gcs package to register the backend.
var Module = fx.Options(
	fx.Provide(NewConnection),
)
