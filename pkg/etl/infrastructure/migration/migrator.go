// Package migration applies the embedded schema migrations with golang-migrate.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/database"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

//go:embed sql
var migrationFS embed.FS

// DefaultTable records the applied migration version.
const DefaultTable = "etl_schema_migrations"

// Migrator applies the migrations matching the connection's dialect.
type Migrator struct {
	conn      database.DBConnection
	dbType    string
	tableName string
}

// NewMigrator creates a Migrator for conn.
func NewMigrator(conn database.DBConnection) *Migrator {
	return &Migrator{conn: conn, dbType: conn.Type(), tableName: DefaultTable}
}

func (m *Migrator) databaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.tableName})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: m.tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sub, err := fs.Sub(migrationFS, "sql")
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, m.dbType)
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver for %s: %w", m.dbType, err)
	}
	driver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, m.dbType, driver)
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up(ctx context.Context) error {
	logger.Infof("Applying migrations (DB: %s, Table: %s)", m.dbType, m.tableName)
	mi, err := m.instance()
	if err != nil {
		return err
	}
	// Closing the instance would close the shared *sql.DB, so it is left to the connection.

	if err := mi.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed (DB: %s): %w", m.dbType, err)
	}
	version, dirty, err := mi.Version()
	if err == nil {
		logger.Infof("Schema at version %d (dirty=%t).", version, dirty)
	}
	return nil
}

// Down rolls back every migration.
func (m *Migrator) Down(ctx context.Context) error {
	mi, err := m.instance()
	if err != nil {
		return err
	}
	if err := mi.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed (DB: %s): %w", m.dbType, err)
	}
	logger.Infof("Migrations rolled back (DB: %s).", m.dbType)
	return nil
}
