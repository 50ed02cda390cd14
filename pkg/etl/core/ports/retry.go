package ports

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// JobRetrier clones a job into a new pending job. attributes are merged into the clone's input.
type JobRetrier interface {
	Retry(ctx context.Context, jobID string, reason string, attributes model.Metadata) (*model.Job, error)
}

// JobExecutor runs the stored rule set of a job.
type JobExecutor interface {
	Run(ctx context.Context, jobID string) (*model.Job, error)
}
