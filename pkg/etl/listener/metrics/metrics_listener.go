package metrics

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-etl/pkg/etl/core/application/port"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
)

type MetricsJobListener struct {
	recorder metrics.MetricRecorder
}

func NewMetricsJobListener(recorder metrics.MetricRecorder) port.JobListener {
	return &MetricsJobListener{recorder: recorder}
}

func (l *MetricsJobListener) BeforeJob(ctx context.Context, job *model.Job) {
	l.recorder.RecordJobStart(ctx, job)
}

func (l *MetricsJobListener) AfterJob(ctx context.Context, job *model.Job) {
	l.recorder.RecordJobEnd(ctx, job)
}

var _ port.JobListener = (*MetricsJobListener)(nil)

// Module adds the metrics listener to the launcher's listeners.
var Module = fx.Provide(fx.Annotate(
	NewMetricsJobListener,
	fx.ResultTags(`group:"job_listeners"`),
))
