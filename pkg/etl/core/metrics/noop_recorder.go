package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// NoOpMetricRecorder discards every metric.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordIngestion(ctx context.Context, sourceType model.SourceType, rows int) {
}
func (r *NoOpMetricRecorder) RecordJobStart(ctx context.Context, job *model.Job) {}
func (r *NoOpMetricRecorder) RecordJobEnd(ctx context.Context, job *model.Job)   {}
func (r *NoOpMetricRecorder) RecordRuleApplied(ctx context.Context, ruleType model.RuleType, rowsBefore, rowsAfter int) {
}
func (r *NoOpMetricRecorder) RecordException(ctx context.Context, exc *model.DataException) {}
func (r *NoOpMetricRecorder) RecordApprovalDecision(ctx context.Context, approval *model.WorkflowApproval) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer opens no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, job *model.Job) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
