package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

const sampleYAML = `
etl:
  log:
    level: DEBUG
  database:
    type: postgres
    host: ${ETL_TEST_DB_HOST}
    port: 5432
    database: etl
  transform:
    high_null_threshold: 0.4
  users:
    - id: u1
      email: admin@example.com
      role: admin
`

func TestLoadConfig_MergesYAMLOverDefaults(t *testing.T) {
	t.Setenv("ETL_TEST_DB_HOST", "db.internal")

	cfg, err := LoadConfig("", RawConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.ETL.Log.Level)
	assert.Equal(t, "postgres", cfg.ETL.Database.Type)
	assert.Equal(t, "db.internal", cfg.ETL.Database.Host)
	assert.Equal(t, 0.4, cfg.ETL.Transform.HighNullThreshold)
	// untouched sections keep their defaults
	assert.Equal(t, 3, cfg.ETL.Retry.MaxAttempts)
	assert.Equal(t, 0.8, cfg.ETL.Exception.AutoCorrectionThreshold)
	assert.Equal(t, model.CoerceKeepOriginal, cfg.ETL.Transform.DefaultCoercionPolicy)
	require.Len(t, cfg.ETL.Users, 1)
	assert.Equal(t, model.RoleAdmin, cfg.ETL.Users[0].Role)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ETL_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("ETL_RETRY_INITIAL_INTERVAL", "250ms")
	t.Setenv("ETL_INGESTION_ALLOWED_EXTENSIONS", ".csv, .json")
	t.Setenv("ETL_TRACING_ENABLED", "true")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.ETL.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ETL.Retry.InitialInterval)
	assert.Equal(t, []string{".csv", ".json"}, cfg.ETL.Ingestion.AllowedExtensions)
	assert.True(t, cfg.ETL.Tracing.Enabled)
}

func TestLoadConfig_RejectsInvalidValues(t *testing.T) {
	_, err := LoadConfig("", RawConfig("etl:\n  database:\n    type: oracle\n"))
	assert.Error(t, err)

	_, err = LoadConfig("", RawConfig("etl:\n  users:\n    - id: u1\n      role: superuser\n"))
	assert.Error(t, err)
}

func TestIsApprover(t *testing.T) {
	cfg := NewConfig()
	assert.True(t, cfg.IsApprover(model.RoleAdmin))
	assert.True(t, cfg.IsApprover(model.RoleDataEngineer))
	assert.False(t, cfg.IsApprover(model.RoleAnalyst))
}

func TestExpandEnv_Defaults(t *testing.T) {
	t.Setenv("ETL_TEST_SET", "value")
	t.Setenv("ETL_TEST_EMPTY", "")

	assert.Equal(t, "value", expandEnv("${ETL_TEST_SET:-other}"))
	assert.Equal(t, "other", expandEnv("${ETL_TEST_EMPTY:-other}"))
	assert.Equal(t, "fallback", expandEnv("${ETL_TEST_UNSET_VARIABLE:-fallback}"))
	assert.Equal(t, "", expandEnv("${ETL_TEST_UNSET_VARIABLE}"))
	assert.Equal(t, "a-value", expandEnv("a-$ETL_TEST_SET"))
}
