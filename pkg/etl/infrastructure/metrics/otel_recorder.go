package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
)

const instrumentationName = "github.com/tigerroll/surfin-etl"

// OTelMetricRecorder implements metrics.MetricRecorder with OpenTelemetry instruments.
type OTelMetricRecorder struct {
	ingestions   otelmetric.Int64Counter
	ingestedRows otelmetric.Int64Counter
	jobsStarted  otelmetric.Int64Counter
	jobsFinished otelmetric.Int64Counter
	jobDuration  otelmetric.Float64Histogram
	rulesApplied otelmetric.Int64Counter
	exceptions   otelmetric.Int64Counter
	approvals    otelmetric.Int64Counter
	opDuration   otelmetric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on provider.
func NewOTelMetricRecorder(provider otelmetric.MeterProvider) (*OTelMetricRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelMetricRecorder{}
	var err error
	if r.ingestions, err = meter.Int64Counter("etl.ingestions", otelmetric.WithDescription("Ingested payloads")); err != nil {
		return nil, err
	}
	if r.ingestedRows, err = meter.Int64Counter("etl.ingested_rows", otelmetric.WithDescription("Ingested tabular rows")); err != nil {
		return nil, err
	}
	if r.jobsStarted, err = meter.Int64Counter("etl.jobs.started"); err != nil {
		return nil, err
	}
	if r.jobsFinished, err = meter.Int64Counter("etl.jobs.finished"); err != nil {
		return nil, err
	}
	if r.jobDuration, err = meter.Float64Histogram("etl.job.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.rulesApplied, err = meter.Int64Counter("etl.rules.applied"); err != nil {
		return nil, err
	}
	if r.exceptions, err = meter.Int64Counter("etl.exceptions"); err != nil {
		return nil, err
	}
	if r.approvals, err = meter.Int64Counter("etl.approval.decisions"); err != nil {
		return nil, err
	}
	if r.opDuration, err = meter.Float64Histogram("etl.operation.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelMetricRecorder) RecordIngestion(ctx context.Context, sourceType model.SourceType, rows int) {
	attrs := otelmetric.WithAttributes(attribute.String("source_type", string(sourceType)))
	r.ingestions.Add(ctx, 1, attrs)
	if rows > 0 {
		r.ingestedRows.Add(ctx, int64(rows), attrs)
	}
}

func (r *OTelMetricRecorder) RecordJobStart(ctx context.Context, job *model.Job) {
	r.jobsStarted.Add(ctx, 1)
}

func (r *OTelMetricRecorder) RecordJobEnd(ctx context.Context, job *model.Job) {
	attrs := otelmetric.WithAttributes(attribute.String("status", job.Status.String()))
	r.jobsFinished.Add(ctx, 1, attrs)
	if job.StartedAt != nil && job.CompletedAt != nil {
		r.jobDuration.Record(ctx, job.CompletedAt.Sub(*job.StartedAt).Seconds(), attrs)
	}
}

func (r *OTelMetricRecorder) RecordRuleApplied(ctx context.Context, ruleType model.RuleType, rowsBefore, rowsAfter int) {
	r.rulesApplied.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("rule", string(ruleType)),
		attribute.Int("rows_removed", rowsBefore-rowsAfter),
	))
}

func (r *OTelMetricRecorder) RecordException(ctx context.Context, exc *model.DataException) {
	r.exceptions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("type", exc.Type),
		attribute.String("severity", string(exc.Severity)),
	))
}

func (r *OTelMetricRecorder) RecordApprovalDecision(ctx context.Context, approval *model.WorkflowApproval) {
	r.approvals.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("type", string(approval.Type)),
		attribute.String("state", string(approval.State)),
	))
}

func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("operation", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.opDuration.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)
