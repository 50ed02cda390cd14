// Package sqlite registers the SQLite dialector with the GORM adapter.
package sqlite

import (
	"errors"

	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/gorm"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the SQLite DSN. Foreign keys are enforced and ":memory:" is
// shared across pool connections.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.Database == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	return "file:" + c.Database + "?_foreign_keys=on&_busy_timeout=5000"
}
