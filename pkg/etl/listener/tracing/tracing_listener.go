package tracing

import (
	"context"
	"sync"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-etl/pkg/etl/core/application/port"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
)

// TracingJobListener opens one span per job run.
type TracingJobListener struct {
	tracer metrics.Tracer
	mu     sync.Mutex
	// job ID -> span context and end function
	spans map[string]jobSpan
}

type jobSpan struct {
	ctx context.Context
	end func()
}

func NewTracingJobListener(tracer metrics.Tracer) port.JobListener {
	return &TracingJobListener{
		tracer: tracer,
		spans:  make(map[string]jobSpan),
	}
}

func (l *TracingJobListener) BeforeJob(ctx context.Context, job *model.Job) {
	spanCtx, end := l.tracer.StartJobSpan(ctx, job)
	l.mu.Lock()
	l.spans[job.ID] = jobSpan{ctx: spanCtx, end: end}
	l.mu.Unlock()
}

func (l *TracingJobListener) AfterJob(ctx context.Context, job *model.Job) {
	l.mu.Lock()
	span, ok := l.spans[job.ID]
	delete(l.spans, job.ID)
	l.mu.Unlock()
	if !ok {
		return
	}
	l.tracer.RecordEvent(span.ctx, "etl.job.finished", map[string]interface{}{"status": string(job.Status)})
	if job.Status == model.JobStatusFailed {
		l.tracer.RecordError(span.ctx, "launcher", jobError(job.ErrorMessage))
	}
	span.end()
}

type jobError string

func (e jobError) Error() string { return string(e) }

var _ port.JobListener = (*TracingJobListener)(nil)

// Module adds the tracing listener to the launcher's listeners.
var Module = fx.Provide(fx.Annotate(
	NewTracingJobListener,
	fx.ResultTags(`group:"job_listeners"`),
))
