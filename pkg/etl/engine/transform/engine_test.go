package transform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/repository/inmemory"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

type fakeLineage struct {
	mu     sync.Mutex
	events []*model.LineageEvent
}

func (f *fakeLineage) RecordEvent(ctx context.Context, jobID string, eventType model.EventType, metadata model.Metadata) (*model.LineageEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := model.NewLineageEvent(jobID, eventType, metadata)
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeLineage) RecordTransformation(ctx context.Context, jobID string, rules []model.RuleType, input, output *model.TableProfile) (*model.LineageEvent, error) {
	ev, _ := f.RecordEvent(ctx, jobID, model.EventTransformation, model.Metadata{"rules_count": len(rules)})
	ev.InputSchema = input
	ev.OutputSchema = output
	return ev, nil
}

func (f *fakeLineage) ofType(t model.EventType) []*model.LineageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.LineageEvent
	for _, ev := range f.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []*model.DataException
}

func (f *fakeReporter) Report(ctx context.Context, jobID, exceptionType, message string, severity model.Severity, metadata model.Metadata) (*model.DataException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exc := model.NewDataException(jobID, exceptionType, message, severity, metadata)
	f.reports = append(f.reports, exc)
	return exc, nil
}

func (f *fakeReporter) ofType(t string) []*model.DataException {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.DataException
	for _, exc := range f.reports {
		if exc.Type == t {
			out = append(out, exc)
		}
	}
	return out
}

var (
	_ ports.LineageRecorder   = (*fakeLineage)(nil)
	_ ports.ExceptionReporter = (*fakeReporter)(nil)
)

type fixture struct {
	store    *inmemory.Store
	lineage  *fakeLineage
	reporter *fakeReporter
	engine   *Engine
}

func newFixture() *fixture {
	f := &fixture{store: inmemory.NewStore(), lineage: &fakeLineage{}, reporter: &fakeReporter{}}
	f.engine = NewEngine(EngineParams{
		Config:   config.NewConfig(),
		Jobs:     f.store,
		Lineage:  f.lineage,
		Reporter: f.reporter,
		Recorder: metrics.NewNoOpMetricRecorder(),
		Tracer:   metrics.NewNoOpTracer(),
	})
	return f
}

func (f *fixture) pendingJob(t *testing.T, doc model.Document) *model.Job {
	t.Helper()
	job := model.NewJob("orders", "", model.Payload{Document: doc}, "tester")
	require.NoError(t, f.store.SaveJob(context.Background(), job))
	return job
}

func xs(values ...int64) model.Document {
	tbl := model.NewTable("x")
	for _, v := range values {
		tbl.Rows = append(tbl.Rows, model.Row{"x": v})
	}
	return model.TabularDocument{Table: tbl}
}

func TestApply_CompletesJob(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := f.pendingJob(t, xs(1, 1, 2))

	out, err := f.engine.Apply(ctx, job, model.RuleSet{{Type: model.RuleRemoveDuplicates, Parameters: map[string]interface{}{"keep": "first"}}})
	require.NoError(t, err)

	assert.Equal(t, 2, out.RowCount)
	assert.Equal(t, 3, out.OriginalRowCount)
	assert.True(t, out.Validation.Passed)
	assert.Equal(t, []model.RuleType{model.RuleRemoveDuplicates}, out.Summary.RulesList)
	tbl, ok := out.Table()
	require.True(t, ok)
	assert.Equal(t, []interface{}{int64(1), int64(2)}, tbl.Column("x"))

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Version)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.NotNil(t, stored.RulesAppliedAt)
	assert.Len(t, stored.Rules, 1)

	events := f.lineage.ofType(model.EventTransformation)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].InputSchema.RowCount)
	assert.Equal(t, 2, events[0].OutputSchema.RowCount)
	assert.Empty(t, f.reporter.reports)
}

func TestApply_UnknownRuleIsReportedAndSkipped(t *testing.T) {
	f := newFixture()
	job := f.pendingJob(t, xs(1, 1, 2))

	out, err := f.engine.Apply(context.Background(), job, model.RuleSet{
		{Type: "magic"},
		{Type: model.RuleRemoveDuplicates},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.RowCount)
	assert.Equal(t, 2, out.Summary.RulesApplied)
	unknown := f.reporter.ofType(model.ExceptionUnknownRule)
	require.Len(t, unknown, 1)
	assert.Equal(t, model.SeverityMedium, unknown[0].Severity)
	assert.Equal(t, "magic", unknown[0].Metadata["rule_type"])
	assert.Equal(t, job.ID, unknown[0].JobID)
}

func TestApply_FaultFailsJob(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := f.pendingJob(t, xs(1, 2))

	_, err := f.engine.Apply(ctx, job, model.RuleSet{{Type: model.RuleHandleNulls, Parameters: map[string]interface{}{"columns": []interface{}{"missing"}}}})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindTransformationFault))

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Nil(t, stored.Output)
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.NotNil(t, stored.CompletedAt)

	faults := f.reporter.ofType(model.ExceptionTransformationError)
	require.Len(t, faults, 1)
	assert.Equal(t, model.SeverityHigh, faults[0].Severity)
	assert.Empty(t, f.lineage.ofType(model.EventTransformation))
}

func decoded(t *testing.T, raw string) model.Document {
	t.Helper()
	v, err := model.DecodeJSONValue([]byte(raw))
	require.NoError(t, err)
	return model.HierarchicalDocument{Value: v}
}

func TestApply_HierarchicalInputCounts(t *testing.T) {
	dedupe := model.RuleSet{{Type: model.RuleRemoveDuplicates}}
	tests := []struct {
		name     string
		raw      string
		before   int
		after    int
		wantRows []interface{}
	}{
		{name: "data envelope", raw: `{"data":[{"x":1},{"x":1},{"x":2}]}`, before: 3, after: 2, wantRows: []interface{}{int64(1), int64(2)}},
		{name: "bare array", raw: `[{"x":1},{"x":1},{"x":2}]`, before: 3, after: 2, wantRows: []interface{}{int64(1), int64(2)}},
		{name: "single object", raw: `{"x":7}`, before: 1, after: 1, wantRows: []interface{}{int64(7)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			ctx := context.Background()
			job := f.pendingJob(t, decoded(t, tt.raw))

			out, err := f.engine.Apply(ctx, job, dedupe)
			require.NoError(t, err)
			assert.Equal(t, tt.before, out.OriginalRowCount)
			assert.Equal(t, tt.after, out.RowCount)
			assert.Equal(t, tt.after, out.Validation.TotalRows)
			tbl, ok := out.Table()
			require.True(t, ok)
			assert.Equal(t, []string{"x"}, tbl.Columns)
			assert.Equal(t, tt.wantRows, tbl.Column("x"))

			events := f.lineage.ofType(model.EventTransformation)
			require.Len(t, events, 1)
			assert.Equal(t, tt.before, events[0].InputSchema.RowCount)
			assert.Equal(t, tt.after, events[0].OutputSchema.RowCount)
		})
	}
}

func TestTableFromDocument_UnwrapsDataEnvelope(t *testing.T) {
	tbl, err := TableFromDocument(decoded(t, `{"data":[{"x":1,"y":"a"},{"x":2}],"meta":{"page":1}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"x", "y"}, tbl.Columns)

	_, err = TableFromDocument(decoded(t, `{"data":["a","b"]}`))
	assert.True(t, exception.IsKind(err, exception.KindUnsupportedInput))
}

// rejectingJobs fails the next n updates that store a failed job.
type rejectingJobs struct {
	*inmemory.Store
	mu sync.Mutex
	n  int
}

func (r *rejectingJobs) UpdateJob(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	if job.Status == model.JobStatusFailed && r.n > 0 {
		r.n--
		r.mu.Unlock()
		return errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.Store.UpdateJob(ctx, job)
}

func newRejectingFixture(n int) (*fixture, *rejectingJobs) {
	f := newFixture()
	jobs := &rejectingJobs{Store: f.store, n: n}
	f.engine = NewEngine(EngineParams{
		Config:   config.NewConfig(),
		Jobs:     jobs,
		Lineage:  f.lineage,
		Reporter: f.reporter,
		Recorder: metrics.NewNoOpMetricRecorder(),
		Tracer:   metrics.NewNoOpTracer(),
	})
	return f, jobs
}

var missingColumn = model.RuleSet{{Type: model.RuleHandleNulls, Parameters: map[string]interface{}{"columns": []interface{}{"missing"}}}}

func TestApply_FailureIsStoredAfterOneRejectedUpdate(t *testing.T) {
	f, _ := newRejectingFixture(1)
	ctx := context.Background()
	job := f.pendingJob(t, xs(1, 2))

	_, err := f.engine.Apply(ctx, job, missingColumn)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindTransformationFault))
	assert.NotContains(t, err.Error(), "connection reset")

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.Equal(t, stored.Version, job.Version)

	faults := f.reporter.ofType(model.ExceptionTransformationError)
	require.Len(t, faults, 1)
	assert.NotContains(t, faults[0].Metadata, "persist_error")
}

func TestApply_UnstoredFailureIsReported(t *testing.T) {
	f, _ := newRejectingFixture(2)
	ctx := context.Background()
	job := f.pendingJob(t, xs(1, 2))

	_, err := f.engine.Apply(ctx, job, missingColumn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, stored.Status)

	faults := f.reporter.ofType(model.ExceptionTransformationError)
	require.Len(t, faults, 1)
	assert.Equal(t, model.SeverityHigh, faults[0].Severity)
	assert.Contains(t, faults[0].Metadata["persist_error"], "connection reset")
}

func TestApply_CoercionFailureFailsJob(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tbl := model.NewTable("n")
	tbl.Rows = append(tbl.Rows, model.Row{"n": "1"}, model.Row{"n": "abc"})
	job := f.pendingJob(t, model.TabularDocument{Table: tbl})

	_, err := f.engine.Apply(ctx, job, model.RuleSet{{Type: model.RuleValidateDataTypes, Parameters: map[string]interface{}{
		"type_mappings": map[string]interface{}{"n": "int"},
		"on_failure":    "fail",
	}}})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindTransformationFault))
	assert.True(t, exception.IsKind(err, exception.KindCoercionFailure))
	assert.Equal(t, model.JobStatusFailed, job.Status)
}

func TestApply_RejectsJobThatIsNotPending(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := f.pendingJob(t, xs(1))
	_, err := f.engine.Apply(ctx, job, nil)
	require.NoError(t, err)

	_, err = f.engine.Apply(ctx, job, nil)
	assert.True(t, exception.IsKind(err, exception.KindInvalidState))
}

func TestApply_ValidationIssuesReportedAsLow(t *testing.T) {
	f := newFixture()
	job := f.pendingJob(t, xs(1, 1))

	out, err := f.engine.Apply(context.Background(), job, model.RuleSet{})
	require.NoError(t, err)
	assert.False(t, out.Validation.Passed)

	issues := f.reporter.ofType(model.ExceptionValidationFailed)
	require.Len(t, issues, 1)
	assert.Equal(t, model.SeverityLow, issues[0].Severity)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestApply_HierarchicalInput(t *testing.T) {
	f := newFixture()
	v, err := model.DecodeJSONValue([]byte(`[{"name":" Ann "},{"name":"BOB"}]`))
	require.NoError(t, err)
	job := f.pendingJob(t, model.HierarchicalDocument{Value: v})

	out, err := f.engine.Apply(context.Background(), job, model.RuleSet{{Type: model.RuleNormalizeText, Parameters: map[string]interface{}{"columns": []interface{}{"name"}}}})
	require.NoError(t, err)

	tbl, ok := out.Table()
	require.True(t, ok)
	assert.Equal(t, []interface{}{"ann", "bob"}, tbl.Column("name"))
}

func TestTableFromDocument_RejectsRawAndScalars(t *testing.T) {
	_, err := TableFromDocument(model.RawDocument{Format: model.RawCSV, Bytes: []byte("a\n1")})
	assert.True(t, exception.IsKind(err, exception.KindUnsupportedInput))

	_, err = TableFromDocument(model.HierarchicalDocument{Value: "text"})
	assert.True(t, exception.IsKind(err, exception.KindUnsupportedInput))

	_, err = TableFromDocument(model.HierarchicalDocument{Value: []interface{}{int64(1)}})
	assert.True(t, exception.IsKind(err, exception.KindUnsupportedInput))

	_, err = TableFromDocument(nil)
	assert.Error(t, err)
}

func dedupeCommand(jobID string) ports.CorrectionCommand {
	return ports.CorrectionCommand{
		JobID:       jobID,
		ExceptionID: "exc-1",
		Suggestion:  model.Suggestion{Type: "deduplication", Action: "remove_duplicates", Confidence: 0.9},
		Rule:        model.RuleSpec{Type: model.RuleRemoveDuplicates},
	}
}

func TestHandleCorrection_CompletedJobRecomputesOutput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := f.pendingJob(t, xs(1, 1, 2))
	_, err := f.engine.Apply(ctx, job, model.RuleSet{})
	require.NoError(t, err)

	require.NoError(t, f.engine.HandleCorrection(ctx, dedupeCommand(job.ID)))

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.Output.RowCount)
	assert.Equal(t, 3, stored.Output.OriginalRowCount)
	assert.Equal(t, 1, stored.Output.Summary.RulesApplied)
	assert.Equal(t, model.RuleSet{{Type: model.RuleRemoveDuplicates}}, stored.Rules)
	assert.True(t, stored.Output.Validation.Passed)

	corrections := f.lineage.ofType(model.EventAutoCorrection)
	require.Len(t, corrections, 1)
	assert.Equal(t, "exc-1", corrections[0].Metadata["exception_id"])
	assert.Equal(t, 3, corrections[0].Metadata["rows_before"])
	assert.Equal(t, 2, corrections[0].Metadata["rows_after"])
}

func TestHandleCorrection_PendingJobReplacesInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	job := f.pendingJob(t, xs(1, 1, 2))

	require.NoError(t, f.engine.HandleCorrection(ctx, dedupeCommand(job.ID)))

	stored, err := f.store.FindJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, stored.Status)
	assert.Nil(t, stored.Output)
	tbl, err := TableFromDocument(stored.Input.Document)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}

func TestHandleCorrection_Failures(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.engine.HandleCorrection(ctx, dedupeCommand("missing"))
	assert.True(t, exception.IsKind(err, exception.KindAutoCorrectionFailure))

	job := f.pendingJob(t, xs(1))
	cmd := dedupeCommand(job.ID)
	cmd.Rule = model.RuleSpec{Type: "fix_encoding"}
	err = f.engine.HandleCorrection(ctx, cmd)
	assert.True(t, exception.IsKind(err, exception.KindAutoCorrectionFailure))

	require.NoError(t, job.MarkAsCancelled())
	require.NoError(t, f.store.UpdateJob(ctx, job))
	err = f.engine.HandleCorrection(ctx, dedupeCommand(job.ID))
	assert.True(t, exception.IsKind(err, exception.KindAutoCorrectionFailure))
	assert.Empty(t, f.lineage.ofType(model.EventAutoCorrection))
}
