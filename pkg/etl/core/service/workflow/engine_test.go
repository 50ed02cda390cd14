package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/lineage"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/notification"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/identity"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Alert(ctx context.Context, recipients []string, subject, body string) error {
	return m.Called(ctx, recipients, subject, body).Error(0)
}

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Run(ctx context.Context, jobID string) (*model.Job, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*model.Job)
	return job, args.Error(1)
}

// storeRetrier clones jobs the way the orchestrator does, without its lineage bookkeeping.
type storeRetrier struct {
	store *inmemory.Store
	calls int
}

func (r *storeRetrier) Retry(ctx context.Context, jobID, reason string, attributes model.Metadata) (*model.Job, error) {
	r.calls++
	orig, err := r.store.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	input := orig.Input.Clone()
	if input.Attributes == nil {
		input.Attributes = model.Metadata{}
	}
	delete(input.Attributes, model.AttrRetriedBy)
	for k, v := range attributes {
		input.Attributes[k] = v
	}
	next := model.NewJob("Retry - "+orig.Name, reason, input, orig.CreatedBy)
	if err := r.store.SaveJob(ctx, next); err != nil {
		return nil, err
	}
	if orig.Input.Attributes == nil {
		orig.Input.Attributes = model.Metadata{}
	}
	orig.Input.Attributes[model.AttrRetriedBy] = next.ID
	return next, r.store.UpdateJob(ctx, orig)
}

type fixture struct {
	store    *inmemory.Store
	notifier *mockNotifier
	executor *mockExecutor
	retrier  *storeRetrier
	engine   *Engine
}

func newFixture() *fixture {
	cfg := config.NewConfig()
	cfg.ETL.Users = []model.User{
		{ID: "alice", Email: "alice@example.com", Role: model.RoleAdmin},
		{ID: "dave", Email: "dave@example.com", Role: model.RoleDataEngineer},
		{ID: "ana", Email: "ana@example.com", Role: model.RoleAnalyst},
		{ID: "vic", Role: model.RoleViewer},
	}
	store := inmemory.NewStore()
	f := &fixture{
		store:    store,
		notifier: new(mockNotifier),
		executor: new(mockExecutor),
		retrier:  &storeRetrier{store: store},
	}
	f.notifier.On("Alert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	dir := identity.NewStaticDirectory(cfg)
	f.engine = NewEngine(EngineParams{
		Config:    cfg,
		Jobs:      store,
		Approvals: store,
		Lineage:   lineage.NewTracker(lineage.TrackerParams{Events: store}),
		Notifier:  notification.NewDispatcher(notification.DispatcherParams{Notifier: f.notifier, Identity: dir}),
		Identity:  dir,
		Executor:  f.executor,
		Retrier:   f.retrier,
		Recorder:  metrics.NewNoOpMetricRecorder(),
	})
	return f
}

func (f *fixture) job(t *testing.T, doc model.Document) *model.Job {
	t.Helper()
	job := model.NewJob("orders", "", model.Payload{Document: doc}, "ana")
	require.NoError(t, f.store.SaveJob(context.Background(), job))
	return job
}

func (f *fixture) eventTypes(t *testing.T, jobID string) []model.EventType {
	t.Helper()
	events, err := f.store.FindEventsByJob(context.Background(), jobID)
	require.NoError(t, err)
	types := make([]model.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.EventType
	}
	return types
}

func TestSubmit_NotifiesApprovers(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)

	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "please promote")
	require.NoError(t, err)

	assert.Equal(t, model.ApprovalPending, approval.State)
	assert.Equal(t, []model.EventType{model.EventApprovalSubmitted}, f.eventTypes(t, job.ID))
	f.notifier.AssertCalled(t, "Alert", mock.Anything, []string{"alice@example.com"}, "Approval Required: data_promotion", mock.Anything)
	f.notifier.AssertCalled(t, "Alert", mock.Anything, []string{"dave@example.com"}, "Approval Required: data_promotion", mock.Anything)
}

func TestSubmit_Failures(t *testing.T) {
	f := newFixture()

	_, err := f.engine.Submit(context.Background(), "missing", "ana", model.ApprovalDataPromotion, "")
	assert.True(t, exception.IsKind(err, exception.KindNotFound))

	job := f.job(t, nil)
	_, err = f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalType("publish"), "")
	assert.True(t, exception.IsKind(err, exception.KindValidation))
}

func TestApprove_DataPromotionCompletesJob(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "")
	require.NoError(t, err)

	decided, err := f.engine.Approve(context.Background(), approval.ID, "alice", "looks good")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, decided.State)
	require.NotNil(t, decided.ApprovedBy)
	assert.Equal(t, "alice", *decided.ApprovedBy)
	assert.Equal(t, "Approver comments: looks good", decided.Comments)

	stored, err := f.store.FindJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.StartedAt)
	assert.False(t, stored.CompletedAt.Before(*stored.StartedAt))

	assert.Equal(t, []model.EventType{
		model.EventApprovalSubmitted,
		model.EventApprovalApproved,
		model.EventDataPromotionStarted,
		model.EventDataPromotionCompleted,
	}, f.eventTypes(t, job.ID))
	f.notifier.AssertCalled(t, "Alert", mock.Anything, []string{"ana@example.com"}, "Approval Approved: Job "+job.ID, mock.Anything)
}

func TestApprove_PromotionOfFinishedJobIsRecordedAsFailure(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	require.NoError(t, job.MarkAsCancelled())
	require.NoError(t, f.store.UpdateJob(context.Background(), job))
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "")
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), approval.ID, "alice", "")
	require.NoError(t, err)

	stored, err := f.store.FindJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, stored.Status)
	assert.Contains(t, f.eventTypes(t, job.ID), model.EventDataPromotionFailed)
}

func TestReject_CancelsJobAndNotifiesSubmitter(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "ready")
	require.NoError(t, err)

	decided, err := f.engine.Reject(context.Background(), approval.ID, "dave", "insufficient data quality")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalRejected, decided.State)
	assert.Equal(t, "ready\n\nRejection reason: insufficient data quality", decided.Comments)

	stored, err := f.store.FindJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, stored.Status)
	assert.Equal(t, []model.EventType{
		model.EventApprovalSubmitted,
		model.EventApprovalRejected,
		model.EventJobCancelled,
	}, f.eventTypes(t, job.ID))
	f.notifier.AssertCalled(t, "Alert", mock.Anything, []string{"ana@example.com"}, "Approval Rejected: Job "+job.ID, mock.Anything)
}

func TestReject_RequiresComments(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "")
	require.NoError(t, err)

	_, err = f.engine.Reject(context.Background(), approval.ID, "alice", "   ")
	assert.True(t, exception.IsKind(err, exception.KindValidation))

	stored, err := f.store.FindApprovalByID(context.Background(), approval.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalPending, stored.State)
}

func TestDecide_IsFinal(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "")
	require.NoError(t, err)
	first, err := f.engine.Approve(context.Background(), approval.ID, "alice", "ok")
	require.NoError(t, err)

	_, err = f.engine.Reject(context.Background(), approval.ID, "dave", "changed my mind")
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindInvalidState))

	stored, err := f.store.FindApprovalByID(context.Background(), approval.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, stored.State)
	assert.Equal(t, first.Comments, stored.Comments)
	assert.Equal(t, "alice", *stored.ApprovedBy)
}

func TestDecide_AuthorizationAndMissingApproval(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "")
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), approval.ID, "ana", "")
	assert.True(t, exception.IsKind(err, exception.KindPermission))
	_, err = f.engine.Approve(context.Background(), approval.ID, "nobody", "")
	assert.True(t, exception.IsKind(err, exception.KindPermission))
	_, err = f.engine.Approve(context.Background(), "missing", "alice", "")
	assert.True(t, exception.IsKind(err, exception.KindNotFound))
}

func TestApprove_JobExecutionRunsExecutor(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	f.executor.On("Run", mock.Anything, job.ID).Return(job, nil).Once()
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalJobExecution, "")
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), approval.ID, "dave", "")
	require.NoError(t, err)
	f.executor.AssertExpectations(t)
}

func TestApprove_JobExecutionFailureIsNotReturned(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	f.executor.On("Run", mock.Anything, job.ID).Return(nil, errors.New("boom")).Once()
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalJobExecution, "")
	require.NoError(t, err)

	decided, err := f.engine.Approve(context.Background(), approval.ID, "dave", "")
	require.NoError(t, err)
	assert.Equal(t, model.ApprovalApproved, decided.State)
}

func TestApprove_SchemaChangeOnlyRecordsIntent(t *testing.T) {
	f := newFixture()
	job := f.job(t, model.HierarchicalDocument{Value: map[string]interface{}{"add_column": "region"}})
	approval, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalSchemaChange, "")
	require.NoError(t, err)

	_, err = f.engine.Approve(context.Background(), approval.ID, "alice", "")
	require.NoError(t, err)

	stored, err := f.store.FindJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)

	events, err := f.store.FindEventsByType(context.Background(), model.EventSchemaChangeApplied)
	require.NoError(t, err)
	require.Len(t, events, 1)
	changes, ok := events[0].Metadata["schema_changes"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"add_column": "region"}, changes["value"])
	f.executor.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestListPendingFor(t *testing.T) {
	f := newFixture()
	job := f.job(t, nil)
	pending, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalDataPromotion, "")
	require.NoError(t, err)
	decided, err := f.engine.Submit(context.Background(), job.ID, "ana", model.ApprovalSchemaChange, "")
	require.NoError(t, err)
	_, err = f.engine.Approve(context.Background(), decided.ID, "alice", "")
	require.NoError(t, err)

	list, err := f.engine.ListPendingFor(context.Background(), "dave")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)

	list, err = f.engine.ListPendingFor(context.Background(), "vic")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.engine.ListPendingFor(context.Background(), "nobody")
	assert.True(t, exception.IsKind(err, exception.KindNotFound))

	forJob, err := f.engine.ForJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, forJob, 2)
}

func (f *fixture) failedJob(t *testing.T, retryCount int) *model.Job {
	t.Helper()
	job := model.NewJob("nightly", "", model.Payload{Attributes: model.Metadata{model.AttrRetryCount: retryCount}}, "ana")
	require.NoError(t, job.MarkAsRunning())
	require.NoError(t, job.MarkAsFailed("boom"))
	require.NoError(t, f.store.SaveJob(context.Background(), job))
	return job
}

func TestAutoRetryFailed_RespectsBound(t *testing.T) {
	f := newFixture()
	fresh := f.failedJob(t, 0)
	exhausted := f.failedJob(t, 3)

	retried, err := f.engine.AutoRetryFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, retried, 1)

	next := retried[0]
	assert.Equal(t, model.JobStatusPending, next.Status)
	assert.Equal(t, 1, next.Input.RetryCount())
	assert.Equal(t, true, next.Input.Attributes[model.AttrAutoRetry])

	events, err := f.store.FindEventsByJob(context.Background(), next.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAutoRetryInitiated, events[0].EventType)
	assert.Equal(t, fresh.ID, events[0].Metadata["original_job_id"])

	stored, err := f.store.FindJobByID(context.Background(), exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	_, retriedAlready := stored.Input.RetriedBy()
	assert.False(t, retriedAlready)
}

func TestAutoRetryFailed_ChainStopsAtThirdRetry(t *testing.T) {
	f := newFixture()
	f.failedJob(t, 0)

	for generation := 1; generation <= 5; generation++ {
		retried, err := f.engine.AutoRetryFailed(context.Background())
		require.NoError(t, err)
		for _, job := range retried {
			stored, err := f.store.FindJobByID(context.Background(), job.ID)
			require.NoError(t, err)
			require.NoError(t, stored.MarkAsRunning())
			require.NoError(t, stored.MarkAsFailed("still broken"))
			require.NoError(t, f.store.UpdateJob(context.Background(), stored))
		}
	}

	assert.Equal(t, 3, f.retrier.calls)
	failed, err := f.store.FindJobsByStatus(context.Background(), model.JobStatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 4)
	maxCount := 0
	for _, job := range failed {
		if c := job.Input.RetryCount(); c > maxCount {
			maxCount = c
		}
	}
	assert.Equal(t, 3, maxCount)
}
