package logging

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-etl/pkg/etl/core/application/port"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

type LoggingJobListener struct{}

func NewLoggingJobListener() port.JobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, job *model.Job) {
	logger.Infof("JobListener: BeforeJob - JobName: %s, ID: %s, Rules: %v", job.Name, job.ID, job.Rules.Types())
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, job *model.Job) {
	if job.Status == model.JobStatusCompleted {
		logger.Infof("JobListener: AfterJob - JobName: %s, ID: %s, Status: %s", job.Name, job.ID, job.Status)
		return
	}
	logger.Warnf("JobListener: AfterJob - JobName: %s, ID: %s, Status: %s, Error: %s", job.Name, job.ID, job.Status, job.ErrorMessage)
}

var _ port.JobListener = (*LoggingJobListener)(nil)

// Module adds the logging listener to the launcher's listeners.
var Module = fx.Provide(fx.Annotate(
	NewLoggingJobListener,
	fx.ResultTags(`group:"job_listeners"`),
))
