// Package metrics implements the core metrics ports with Prometheus and OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// PrometheusRecorder implements metrics.MetricRecorder on a private registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	ingestions       *prometheus.CounterVec
	ingestedRows     *prometheus.CounterVec
	jobsStarted      prometheus.Counter
	jobsFinished     *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	rulesApplied     *prometheus.CounterVec
	ruleRowsRemoved  *prometheus.CounterVec
	exceptions       *prometheus.CounterVec
	approvalDecision *prometheus.CounterVec
	opDuration       *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with Go and process collectors registered.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_ingestions_total",
			Help: "Total ingested payloads by source type.",
		}, []string{"source_type"}),
		ingestedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_ingested_rows_total",
			Help: "Total ingested tabular rows by source type.",
		}, []string{"source_type"}),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etl_jobs_started_total",
			Help: "Total jobs moved to running.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_jobs_finished_total",
			Help: "Total jobs reaching a terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_job_duration_seconds",
			Help:    "Duration of job runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		rulesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_rules_applied_total",
			Help: "Total transformation rule applications.",
		}, []string{"rule"}),
		ruleRowsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_rule_rows_removed_total",
			Help: "Total rows removed by transformation rules.",
		}, []string{"rule"}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_exceptions_total",
			Help: "Total reported data exceptions.",
		}, []string{"type", "severity"}),
		approvalDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_approval_decisions_total",
			Help: "Total approval decisions.",
		}, []string{"type", "state"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etl_operation_duration_seconds",
			Help:    "Duration of timed operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		r.ingestions, r.ingestedRows, r.jobsStarted, r.jobsFinished, r.jobDuration,
		r.rulesApplied, r.ruleRowsRemoved, r.exceptions, r.approvalDecision, r.opDuration,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordIngestion(ctx context.Context, sourceType model.SourceType, rows int) {
	r.ingestions.WithLabelValues(string(sourceType)).Inc()
	if rows > 0 {
		r.ingestedRows.WithLabelValues(string(sourceType)).Add(float64(rows))
	}
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, job *model.Job) {
	r.jobsStarted.Inc()
	logger.Debugf("Metrics: Job '%s' started.", job.ID)
}

func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, job *model.Job) {
	status := job.Status.String()
	r.jobsFinished.WithLabelValues(status).Inc()
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration := job.CompletedAt.Sub(*job.StartedAt).Seconds()
		r.jobDuration.WithLabelValues(status).Observe(duration)
		logger.Debugf("Metrics: Job '%s' ended as %s. Duration: %.3fs", job.ID, status, duration)
	}
}

func (r *PrometheusRecorder) RecordRuleApplied(ctx context.Context, ruleType model.RuleType, rowsBefore, rowsAfter int) {
	r.rulesApplied.WithLabelValues(string(ruleType)).Inc()
	if removed := rowsBefore - rowsAfter; removed > 0 {
		r.ruleRowsRemoved.WithLabelValues(string(ruleType)).Add(float64(removed))
	}
}

func (r *PrometheusRecorder) RecordException(ctx context.Context, exc *model.DataException) {
	r.exceptions.WithLabelValues(exc.Type, string(exc.Severity)).Inc()
}

func (r *PrometheusRecorder) RecordApprovalDecision(ctx context.Context, approval *model.WorkflowApproval) {
	r.approvalDecision.WithLabelValues(string(approval.Type), string(approval.State)).Inc()
}

// RecordDuration observes duration under name. Tags are not used as labels.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.opDuration.WithLabelValues(name).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
