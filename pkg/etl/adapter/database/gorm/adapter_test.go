package gorm

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/database"
	dbconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/config"
)

type jobRow struct {
	ID     string
	Status string
}

func (jobRow) TableName() string { return "etl_jobs" }

func setupMockAdapter(t *testing.T) (*GormDBAdapter, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	adapter := NewGormDBAdapter(gormDB, sqlDB, dbconfig.DatabaseConfig{Type: "mysql"}, "metadata")
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = adapter.Close()
	})
	return adapter, mock
}

func TestGormDBAdapter_CountUsesTableName(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `etl_jobs` WHERE (`etl_jobs`\\.)?`status` = \\?").
		WithArgs("failed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := adapter.Executor(context.Background()).Count(context.Background(), &jobRow{}, map[string]interface{}{"status": "failed"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBAdapter_DeleteReturnsRowsAffected(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	mock.ExpectExec("DELETE FROM `etl_jobs` WHERE `etl_jobs`\\.`id` = \\?").
		WithArgs("j1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := adapter.ExecuteUpdate(context.Background(), &jobRow{}, database.OpDelete, "etl_jobs", map[string]interface{}{"id": "j1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormDBAdapter_UnsupportedOperation(t *testing.T) {
	adapter, _ := setupMockAdapter(t)
	_, err := adapter.ExecuteUpdate(context.Background(), &jobRow{}, "UPSERT", "etl_jobs", nil)
	assert.Error(t, err)
}

func TestGormDBAdapter_WithTransactionRollsBackOnError(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := adapter.WithTransaction(context.Background(), func(ctx context.Context) error {
		// Nested transactions reuse the outer executor.
		return adapter.WithTransaction(ctx, func(inner context.Context) error {
			assert.Same(t, adapter.Executor(ctx), adapter.Executor(inner))
			assert.NotSame(t, adapter.Executor(context.Background()), adapter.Executor(inner))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
