package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

func finishedJob(status model.JobStatus) *model.Job {
	start := time.Now().Add(-2 * time.Second)
	end := time.Now()
	return &model.Job{ID: "job-1", Name: "load", Status: status, StartedAt: &start, CompletedAt: &end}
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := context.Background()

	r.RecordIngestion(ctx, model.SourceTypeBatch, 10)
	r.RecordJobStart(ctx, finishedJob(model.JobStatusRunning))
	r.RecordJobEnd(ctx, finishedJob(model.JobStatusCompleted))
	r.RecordRuleApplied(ctx, model.RuleRemoveDuplicates, 10, 7)
	r.RecordException(ctx, &model.DataException{Type: model.ExceptionTransformationError, Severity: model.SeverityHigh})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ingestions.WithLabelValues("batch")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.ingestedRows.WithLabelValues("batch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsFinished.WithLabelValues("completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.ruleRowsRemoved.WithLabelValues("remove_duplicates")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exceptions.WithLabelValues("transformation_error", "high")))
}

func TestOTelMetricRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOTelMetricRecorder(mp)
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordJobStart(ctx, finishedJob(model.JobStatusRunning))
	r.RecordJobEnd(ctx, finishedJob(model.JobStatusFailed))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	assert.True(t, names["etl.jobs.started"])
	assert.True(t, names["etl.jobs.finished"])
	assert.True(t, names["etl.job.duration"])
}

func TestOpenTelemetryTracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp)

	job := finishedJob(model.JobStatusRunning)
	ctx, end := tracer.StartJobSpan(context.Background(), job)
	tracer.RecordEvent(ctx, "rule_applied", map[string]interface{}{"rule": "remove_duplicates", "rows": 3})
	tracer.RecordError(ctx, "transform", errors.New("boom"))
	job.Status = model.JobStatusFailed
	end()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "etl.job.run", spans[0].Name())
	assert.Len(t, spans[0].Events(), 2) // custom event plus the recorded error
}
