// Package database defines the persistence port used by the SQL repositories.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/config"
)

// Operation names accepted by DBExecutor.ExecuteUpdate.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// DBExecutor defines the write and read operations shared by connections and transactions.
type DBExecutor interface {
	// ExecuteUpdate performs a write. For UPDATE the query map is added to the primary key condition.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteQuery executes a SELECT with an equality filter.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced executes a SELECT with optional sorting and limiting.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// Count counts the records matching the query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)
}

// DBConnection is an open database handle.
type DBConnection interface {
	DBExecutor

	Type() string
	Name() string
	Close() error

	// WithTransaction runs fn inside a transaction. Executors resolved from the ctx passed to fn
	// participate in that transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// Executor returns the transaction bound to ctx, or the connection itself.
	Executor(ctx context.Context) DBExecutor

	Config() dbconfig.DatabaseConfig
	GetSQLDB() (*sql.DB, error)
}
