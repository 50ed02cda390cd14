package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/config"
)

func TestConnectionString(t *testing.T) {
	dsn := ConnectionString(dbconfig.DatabaseConfig{
		Host: "localhost", Port: 3306, User: "etl", Password: "secret", Database: "etl",
	})
	assert.Contains(t, dsn, "etl:secret@tcp(localhost:3306)/etl")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
