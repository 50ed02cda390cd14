package sql

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	testifymock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/database"
	dbconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// mockConnection records ExecuteUpdate calls and serves itself as the executor.
type mockConnection struct {
	testifymock.Mock
}

func (m *mockConnection) ExecuteUpdate(ctx context.Context, entity interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, entity, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockConnection) ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error {
	return m.Called(ctx, target, query).Error(0)
}

func (m *mockConnection) ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	return m.Called(ctx, target, query, orderBy, limit).Error(0)
}

func (m *mockConnection) Count(ctx context.Context, entity interface{}, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, entity, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockConnection) Type() string  { return "mock_db" }
func (m *mockConnection) Name() string  { return "mock_db" }
func (m *mockConnection) Close() error { return nil }
func (m *mockConnection) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
func (m *mockConnection) Executor(ctx context.Context) database.DBExecutor { return m }
func (m *mockConnection) Config() dbconfig.DatabaseConfig                 { return dbconfig.DatabaseConfig{Type: "mock_db"} }
func (m *mockConnection) GetSQLDB() (*sql.DB, error)                      { return nil, nil }

func sampleJob() *model.Job {
	table := model.NewTable("id", "name")
	table.Rows = append(table.Rows, model.Row{"id": int64(1), "name": "alice"})
	return model.NewJob("job", "desc", model.Payload{Document: model.TabularDocument{Table: table}}, "u1")
}

func TestSQLStore_SaveJob(t *testing.T) {
	conn := new(mockConnection)
	store := NewSQLStore(conn)
	job := sampleJob()

	conn.On("ExecuteUpdate", testifymock.Anything, testifymock.AnythingOfType("*sql.JobEntity"), database.OpCreate, "etl_processing_jobs", testifymock.Anything).Return(int64(1), nil)

	require.NoError(t, store.SaveJob(context.Background(), job))
	conn.AssertExpectations(t)
}

func TestSQLStore_UpdateJob(t *testing.T) {
	conn := new(mockConnection)
	store := NewSQLStore(conn)
	job := sampleJob()

	expectedQuery := map[string]interface{}{"version": 0}
	conn.On("ExecuteUpdate", testifymock.Anything, testifymock.Anything, database.OpUpdate, "etl_processing_jobs", expectedQuery).Return(int64(1), nil)

	require.NoError(t, store.UpdateJob(context.Background(), job))
	assert.Equal(t, 1, job.Version)
	conn.AssertExpectations(t)
}

func TestSQLStore_UpdateJob_OptimisticLocking(t *testing.T) {
	conn := new(mockConnection)
	store := NewSQLStore(conn)
	job := sampleJob()

	expectedQuery := map[string]interface{}{"version": 0}
	conn.On("ExecuteUpdate", testifymock.Anything, testifymock.Anything, database.OpUpdate, "etl_processing_jobs", expectedQuery).Return(int64(0), nil)

	err := store.UpdateJob(context.Background(), job)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, job.Version)
	conn.AssertExpectations(t)
}

func TestSQLStore_FindJobByID_NotFound(t *testing.T) {
	conn := new(mockConnection)
	store := NewSQLStore(conn)

	conn.On("ExecuteQueryAdvanced", testifymock.Anything, testifymock.Anything, map[string]interface{}{"id": "missing"}, "", 1).Return(nil)

	_, err := store.FindJobByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
}

func TestSQLStore_UpdateApproval_OptimisticLocking(t *testing.T) {
	conn := new(mockConnection)
	store := NewSQLStore(conn)
	approval := model.NewWorkflowApproval("job-1", model.ApprovalDataPromotion, "u1", "")
	approval.Version = 2

	conn.On("ExecuteUpdate", testifymock.Anything, testifymock.Anything, database.OpUpdate, "etl_workflow_approvals", map[string]interface{}{"version": 2}).Return(int64(0), nil)

	err := store.UpdateApproval(context.Background(), approval)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 2, approval.Version)
}

func TestMapper_JobRoundTrip(t *testing.T) {
	job := sampleJob()
	job.Rules = model.RuleSet{{Type: model.RuleRemoveDuplicates, Parameters: map[string]interface{}{"keep": "first"}}}
	out := model.NewTable("id")
	out.Rows = append(out.Rows, model.Row{"id": int64(1)})
	job.Output = &model.JobOutput{Data: model.TabularDocument{Table: out}, RowCount: 1, OriginalRowCount: 1}

	entity, err := fromDomainJob(job)
	require.NoError(t, err)
	back, err := toDomainJob(entity)
	require.NoError(t, err)

	assert.Equal(t, job.ID, back.ID)
	assert.Equal(t, job.Status, back.Status)
	assert.Equal(t, job.Rules.Types(), back.Rules.Types())
	tbl, ok := back.Output.Table()
	require.True(t, ok)
	assert.Equal(t, int64(1), tbl.Rows[0]["id"])
	in, ok := back.Input.Document.(model.TabularDocument)
	require.True(t, ok)
	assert.Equal(t, "alice", in.Table.Rows[0]["name"])
}

func TestMapper_RejectsUnknownEventType(t *testing.T) {
	_, err := toDomainEvent(&LineageEventEntity{ID: "e1", EventType: "teleported", Metadata: "{}", TransformationDetails: "{}"})
	assert.ErrorIs(t, err, model.ErrUnknownEventType)
}
