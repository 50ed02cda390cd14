package exceptions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/application/command"
	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/lineage"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/notification"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/transform"
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

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, cmd ports.CorrectionCommand) error {
	return m.Called(ctx, cmd).Error(0)
}

type fixture struct {
	cfg      *config.Config
	store    *inmemory.Store
	notifier *mockNotifier
	reporter *Reporter
}

func newFixture(dispatcher ports.CorrectionDispatcher) *fixture {
	cfg := config.NewConfig()
	cfg.ETL.Users = []model.User{{ID: "root", Email: "root@example.com", Role: model.RoleAdmin}}
	f := &fixture{cfg: cfg, store: inmemory.NewStore(), notifier: new(mockNotifier)}
	f.notifier.On("Alert", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.reporter = NewReporter(ReporterParams{
		Config:      cfg,
		Repo:        f.store,
		Notifier:    notification.NewDispatcher(notification.DispatcherParams{Notifier: f.notifier, Identity: identity.NewStaticDirectory(cfg)}),
		Corrections: dispatcher,
		Recorder:    metrics.NewNoOpMetricRecorder(),
	})
	return f
}

func (f *fixture) exceptionsOfType(t *testing.T, jobID, excType string) []*model.DataException {
	t.Helper()
	all, err := f.store.FindExceptionsByJob(context.Background(), jobID)
	require.NoError(t, err)
	var out []*model.DataException
	for _, e := range all {
		if e.Type == excType {
			out = append(out, e)
		}
	}
	return out
}

func TestReport_HighSeverityAlertsAdmins(t *testing.T) {
	d := new(mockDispatcher)
	f := newFixture(d)

	exc, err := f.reporter.Report(context.Background(), "job-1", model.ExceptionTransformationError, "boom", model.SeverityHigh, nil)
	require.NoError(t, err)

	stored, err := f.store.FindExceptionByID(context.Background(), exc.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", stored.Message)
	assert.NotContains(t, stored.Metadata, model.MetaSuggestions)
	f.notifier.AssertCalled(t, "Alert", mock.Anything, []string{"root@example.com"}, "Data Exception Alert: HIGH", mock.Anything)
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestReport_LowSeverityDoesNotAlert(t *testing.T) {
	f := newFixture(new(mockDispatcher))

	_, err := f.reporter.Report(context.Background(), "job-1", "custom_check", "minor", model.SeverityLow, nil)
	require.NoError(t, err)

	f.notifier.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReport_SuggestionAtThresholdIsNotApplied(t *testing.T) {
	d := new(mockDispatcher)
	f := newFixture(d)

	exc, err := f.reporter.Report(context.Background(), "job-1", model.ExceptionDataTypeMismatch, "bad types", model.SeverityMedium, nil)
	require.NoError(t, err)

	suggestions, ok := exc.Metadata[model.MetaSuggestions].([]interface{})
	require.True(t, ok)
	require.Len(t, suggestions, 1)
	assert.Equal(t, ActionConvertDataTypes, suggestions[0].(map[string]interface{})["action"])
	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	assert.Empty(t, f.exceptionsOfType(t, "job-1", model.ExceptionAutoCorrectionApplied))
}

func TestReport_ConfidentSuggestionIsDispatched(t *testing.T) {
	d := new(mockDispatcher)
	d.On("Dispatch", mock.Anything, mock.MatchedBy(func(cmd ports.CorrectionCommand) bool {
		return cmd.JobID == "job-1" && cmd.Rule.Type == model.RuleRemoveDuplicates && cmd.Suggestion.Confidence == 0.9
	})).Return(nil).Once()
	f := newFixture(d)

	exc, err := f.reporter.Report(context.Background(), "job-1", model.ExceptionDuplicateRecords, "dupes", model.SeverityMedium, nil)
	require.NoError(t, err)

	d.AssertExpectations(t)
	applied := f.exceptionsOfType(t, "job-1", model.ExceptionAutoCorrectionApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, model.SeverityLow, applied[0].Severity)
	assert.Equal(t, exc.ID, applied[0].Metadata["original_exception_id"])
	assert.Equal(t, true, applied[0].Metadata["auto_correction"])
	assert.Equal(t, ActionRemoveDuplicates, applied[0].Metadata["correction_action"])
}

func TestReport_DispatchFailureIsReported(t *testing.T) {
	d := new(mockDispatcher)
	d.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("engine unavailable")).Once()
	f := newFixture(d)

	exc, err := f.reporter.Report(context.Background(), "job-1", model.ExceptionDuplicateRecords, "dupes", model.SeverityLow, nil)
	require.NoError(t, err)

	failed := f.exceptionsOfType(t, "job-1", model.ExceptionAutoCorrectionFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, model.SeverityMedium, failed[0].Severity)
	assert.Equal(t, exc.ID, failed[0].Metadata["original_exception_id"])
	assert.Contains(t, failed[0].Metadata["error"], "engine unavailable")
	d.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestReport_ActionWithoutRuleFails(t *testing.T) {
	d := new(mockDispatcher)
	f := newFixture(d)
	f.cfg.ETL.Exception.AutoCorrectionThreshold = 0.6

	_, err := f.reporter.Report(context.Background(), "job-1", model.ExceptionEncodingError, "latin-1", model.SeverityLow, nil)
	require.NoError(t, err)

	d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	assert.Len(t, f.exceptionsOfType(t, "job-1", model.ExceptionAutoCorrectionFailed), 1)
}

func TestReport_AutoCorrectionThroughEngine(t *testing.T) {
	bus := command.NewCorrectionBus()
	f := newFixture(bus)
	ctx := context.Background()
	engine := transform.NewEngine(transform.EngineParams{
		Config:   f.cfg,
		Jobs:     f.store,
		Lineage:  lineage.NewTracker(lineage.TrackerParams{Events: f.store}),
		Reporter: f.reporter,
		Recorder: metrics.NewNoOpMetricRecorder(),
		Tracer:   metrics.NewNoOpTracer(),
	})
	bus.Register(engine)

	tbl := model.NewTable("id")
	tbl.Rows = append(tbl.Rows, model.Row{"id": int64(1)}, model.Row{"id": int64(1)}, model.Row{"id": int64(2)})
	job := model.NewJob("dupes", "", model.Payload{Document: model.TabularDocument{Table: tbl}}, "root")
	require.NoError(t, f.store.SaveJob(ctx, job))
	_, err := engine.Apply(ctx, job, model.RuleSet{})
	require.NoError(t, err)

	_, err = f.reporter.Report(ctx, job.ID, model.ExceptionDuplicateRecords, "Found 1 duplicate rows", model.SeverityMedium, nil)
	require.NoError(t, err)

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Output.RowCount)
	assert.Len(t, f.exceptionsOfType(t, job.ID, model.ExceptionAutoCorrectionApplied), 1)
	assert.Empty(t, f.exceptionsOfType(t, job.ID, model.ExceptionAutoCorrectionFailed))

	events, err := f.store.FindEventsByType(ctx, model.EventAutoCorrection)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestResolve(t *testing.T) {
	f := newFixture(new(mockDispatcher))
	ctx := context.Background()
	exc, err := f.reporter.Report(ctx, "job-1", "custom_check", "minor", model.SeverityLow, nil)
	require.NoError(t, err)

	resolved, err := f.reporter.Resolve(ctx, exc.ID, "root", "fixed upstream")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "root", *resolved.ResolvedBy)
	assert.Equal(t, "fixed upstream", resolved.ResolutionNotes)
	assert.NotNil(t, resolved.ResolvedAt)
	f.notifier.AssertCalled(t, "Alert", mock.Anything, []string{"root@example.com"}, "Exception Resolved: custom_check", mock.Anything)

	_, err = f.reporter.Resolve(ctx, exc.ID, "other", "again")
	assert.True(t, exception.IsKind(err, exception.KindInvalidState))
	stored, err := f.store.FindExceptionByID(ctx, exc.ID)
	require.NoError(t, err)
	assert.Equal(t, "root", *stored.ResolvedBy)

	_, err = f.reporter.Resolve(ctx, "missing", "root", "")
	assert.True(t, exception.IsKind(err, exception.KindNotFound))
}

func TestStatistics(t *testing.T) {
	f := newFixture(new(mockDispatcher))
	ctx := context.Background()
	a, err := f.reporter.Report(ctx, "job-1", "custom_check", "a", model.SeverityLow, nil)
	require.NoError(t, err)
	_, err = f.reporter.Report(ctx, "job-1", "custom_check", "b", model.SeverityHigh, nil)
	require.NoError(t, err)
	_, err = f.reporter.Report(ctx, "job-2", "other_check", "c", model.SeverityMedium, nil)
	require.NoError(t, err)
	_, err = f.reporter.Resolve(ctx, a.ID, "root", "")
	require.NoError(t, err)

	all, err := f.reporter.Statistics(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, all.TotalExceptions)
	assert.Equal(t, 1, all.ResolvedExceptions)
	assert.Equal(t, 2, all.UnresolvedExceptions)
	assert.InDelta(t, 33.33, all.ResolutionRate, 0.01)
	assert.Equal(t, map[model.Severity]int{model.SeverityLow: 1, model.SeverityMedium: 1, model.SeverityHigh: 1, model.SeverityCritical: 0}, all.SeverityBreakdown)
	assert.Equal(t, map[string]int{"custom_check": 2, "other_check": 1}, all.ExceptionTypes)

	jobID := "job-1"
	one, err := f.reporter.Statistics(ctx, &jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, one.TotalExceptions)
	assert.Equal(t, 50.0, one.ResolutionRate)

	empty, err := f.reporter.Statistics(ctx, strPtr("none"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.ResolutionRate)
}

func strPtr(s string) *string { return &s }

func TestRecent_DefaultsToConfiguredLimit(t *testing.T) {
	f := newFixture(new(mockDispatcher))
	f.cfg.ETL.Exception.RecentLimit = 2
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.reporter.Report(ctx, "job-1", "custom_check", "x", model.SeverityLow, nil)
		require.NoError(t, err)
	}

	recent, err := f.reporter.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	forJob, err := f.reporter.ForJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Len(t, forJob, 3)
}

func TestCorrectionRule(t *testing.T) {
	rule, ok := CorrectionRule(ActionFillMissingValues, model.Metadata{"columns": []interface{}{"a"}})
	require.True(t, ok)
	assert.Equal(t, model.RuleHandleNulls, rule.Type)
	assert.Equal(t, "N/A", rule.Parameters["fill_value"])
	assert.Equal(t, []interface{}{"a"}, rule.Parameters["columns"])

	rule, ok = CorrectionRule(ActionParseDates, model.Metadata{"columns": []interface{}{"d"}})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"d": "datetime"}, rule.Parameters["type_mappings"])

	rule, ok = CorrectionRule(ActionConvertDataTypes, model.Metadata{"type_mappings": map[string]interface{}{"n": "int"}})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"n": "int"}, rule.Parameters["type_mappings"])

	_, ok = CorrectionRule(ActionFixEncoding, nil)
	assert.False(t, ok)

	for _, action := range []string{ActionConvertDataTypes, ActionFillMissingValues, ActionRemoveDuplicates, ActionParseDates} {
		rule, _ := CorrectionRule(action, nil)
		_, err := model.DecodeRule(rule)
		assert.NoError(t, err, action)
	}
}
