package lineage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/infrastructure/repository/inmemory"
)

func newTracker() *Tracker {
	return NewTracker(TrackerParams{Events: inmemory.NewStore()})
}

func TestTrace_OrdersEventsAndDescribes(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()
	source := "src-1"

	_, err := tr.RecordIngestion(ctx, "job-1", &source, model.Metadata{"ingestion_type": "api"})
	require.NoError(t, err)
	before := &model.TableProfile{Columns: []model.ColumnProfile{{Name: "a", Type: "string"}}, RowCount: 3}
	after := &model.TableProfile{Columns: []model.ColumnProfile{{Name: "a", Type: "integer"}, {Name: "b", Type: "string"}}, RowCount: 2}
	_, err = tr.RecordTransformation(ctx, "job-1", []model.RuleType{model.RuleRemoveDuplicates, model.RuleValidateDataTypes}, before, after)
	require.NoError(t, err)
	_, err = tr.RecordOutput(ctx, "job-1", "warehouse.orders", nil)
	require.NoError(t, err)
	_, err = tr.RecordEvent(ctx, "job-1", model.EventJobCancelled, nil)
	require.NoError(t, err)
	_, err = tr.RecordEvent(ctx, "job-2", model.EventIngestion, nil)
	require.NoError(t, err)

	trace, err := tr.Trace(ctx, "job-1")
	require.NoError(t, err)

	assert.Equal(t, 4, trace.TotalEvents)
	descriptions := make([]string, len(trace.DataFlow))
	for i, step := range trace.DataFlow {
		assert.Equal(t, i+1, step.Step)
		descriptions[i] = step.Description
	}
	assert.Equal(t, []string{
		"Data ingested via api",
		"Applied 2 transformation rules",
		"Data output to warehouse.orders",
		"Event: job_cancelled",
	}, descriptions)

	require.Len(t, trace.Transformations, 1)
	changes, ok := trace.Transformations[0].Details["schema_changes"].(model.Metadata)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"b"}, changes["columns_added"])
	assert.Equal(t, float64(-1), changes["row_count_change"])
	assert.Equal(t, 2, trace.Transformations[0].OutputSchema.RowCount)
}

func TestTrace_UnknownJobIsEmpty(t *testing.T) {
	trace, err := newTracker().Trace(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, 0, trace.TotalEvents)
	assert.Empty(t, trace.DataFlow)
	assert.Empty(t, trace.Transformations)
}

func TestDownstreamDependencies_MatchesSourceMetadata(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	_, err := tr.RecordOutput(ctx, "upstream", "lake/orders.parquet", model.Metadata{"format": "parquet"})
	require.NoError(t, err)
	_, err = tr.RecordEvent(ctx, "consumer", model.EventIngestion, model.Metadata{"source": "lake/orders.parquet"})
	require.NoError(t, err)
	_, err = tr.RecordEvent(ctx, "unrelated", model.EventIngestion, model.Metadata{"source": "elsewhere"})
	require.NoError(t, err)
	_, err = tr.RecordEvent(ctx, "upstream", model.EventCustom, model.Metadata{"source": "lake/orders.parquet"})
	require.NoError(t, err)

	deps, err := tr.DownstreamDependencies(ctx, "upstream")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "consumer", deps[0].DownstreamJobID)
	assert.Equal(t, ConnectionDataFlow, deps[0].ConnectionType)
	assert.Equal(t, "lake/orders.parquet", deps[0].Destination)

	report, err := tr.Report(ctx, "upstream")
	require.NoError(t, err)
	assert.Equal(t, ReportSummary{TotalEvents: 2, TransformationsCount: 0, DownstreamDependencies: 1}, report.Summary)

	none, err := tr.DownstreamDependencies(ctx, "consumer")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBySource(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()
	source := "src-9"
	_, err := tr.RecordIngestion(ctx, "job-a", &source, nil)
	require.NoError(t, err)
	_, err = tr.RecordIngestion(ctx, "job-b", &source, nil)
	require.NoError(t, err)
	_, err = tr.RecordIngestion(ctx, "job-c", nil, nil)
	require.NoError(t, err)

	events, err := tr.BySource(ctx, source)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
