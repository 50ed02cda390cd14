// Package metrics declares the observability ports of the ETL core. Backends live in
// infrastructure/metrics; the no-op variants are the defaults.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// MetricRecorder records platform metrics.
type MetricRecorder interface {
	// RecordIngestion counts an ingested payload and its row count (0 when not tabular).
	RecordIngestion(ctx context.Context, sourceType model.SourceType, rows int)
	// RecordJobStart records a job entering running.
	RecordJobStart(ctx context.Context, job *model.Job)
	// RecordJobEnd records a job reaching a terminal status.
	RecordJobEnd(ctx context.Context, job *model.Job)
	// RecordRuleApplied records one rule application and the row counts around it.
	RecordRuleApplied(ctx context.Context, ruleType model.RuleType, rowsBefore, rowsAfter int)
	// RecordException counts a reported data exception.
	RecordException(ctx context.Context, exc *model.DataException)
	// RecordApprovalDecision counts a decided approval.
	RecordApprovalDecision(ctx context.Context, approval *model.WorkflowApproval)
	// RecordDuration records an arbitrary timed operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// Tracer opens spans around jobs and operations.
type Tracer interface {
	// StartJobSpan starts a span for job. The returned func ends it.
	StartJobSpan(ctx context.Context, job *model.Job) (context.Context, func())
	// StartSpan starts a named span with attributes.
	StartSpan(ctx context.Context, name string, attributes map[string]interface{}) (context.Context, func())
	// RecordError records err on the current span.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event to the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
