// Package port defines the application-level extension points of the ETL core.
package port

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// JobListener is notified around a job run.
type JobListener interface {
	// BeforeJob is called right before a pending job starts running.
	BeforeJob(ctx context.Context, job *model.Job)
	// AfterJob is called once the run returned, whatever the outcome. job carries the final status.
	AfterJob(ctx context.Context, job *model.Job)
}
