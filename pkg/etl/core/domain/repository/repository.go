// Package repository declares the persistence ports of the ETL core. Implementations live
// under infrastructure/repository (in-memory and SQL).
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrSchemaNotFound     = errors.New("detected schema not found")
	ErrExceptionNotFound  = errors.New("exception not found")
	ErrApprovalNotFound   = errors.New("workflow approval not found")
	ErrDataSourceNotFound = errors.New("data source not found")
)

func init() {
	exception.RegisterErrorType("ErrJobNotFound", ErrJobNotFound)
	exception.RegisterErrorType("ErrSchemaNotFound", ErrSchemaNotFound)
	exception.RegisterErrorType("ErrExceptionNotFound", ErrExceptionNotFound)
	exception.RegisterErrorType("ErrApprovalNotFound", ErrApprovalNotFound)
	exception.RegisterErrorType("ErrDataSourceNotFound", ErrDataSourceNotFound)
}

// IsNotFound reports whether err is one of the repository not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrSchemaNotFound) ||
		errors.Is(err, ErrExceptionNotFound) ||
		errors.Is(err, ErrApprovalNotFound) ||
		errors.Is(err, ErrDataSourceNotFound)
}

// JobRepository persists ProcessingJobs.
type JobRepository interface {
	// SaveJob persists a new job.
	SaveJob(ctx context.Context, job *model.Job) error
	// UpdateJob persists changes. It increments job.Version and fails with an optimistic
	// locking error when the stored version differs from the one the caller read.
	UpdateJob(ctx context.Context, job *model.Job) error
	// FindJobByID returns ErrJobNotFound when absent.
	FindJobByID(ctx context.Context, id string) (*model.Job, error)
	// FindJobsByStatus returns jobs in the given status, oldest first.
	FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	// FindJobsBySource returns jobs referencing sourceID, oldest first.
	FindJobsBySource(ctx context.Context, sourceID string) ([]*model.Job, error)
}

// SchemaRepository persists DetectedSchemas.
type SchemaRepository interface {
	SaveSchema(ctx context.Context, schema *model.DetectedSchema) error
	// UpdateSchema is used only for the approval flag.
	UpdateSchema(ctx context.Context, schema *model.DetectedSchema) error
	FindSchemaByID(ctx context.Context, id string) (*model.DetectedSchema, error)
	// FindSchemasBySource returns schemas for sourceID, newest first.
	FindSchemasBySource(ctx context.Context, sourceID string) ([]*model.DetectedSchema, error)
	// FindSchemasByJob returns schemas detected for jobID, newest first.
	FindSchemasByJob(ctx context.Context, jobID string) ([]*model.DetectedSchema, error)
}

// LineageRepository is append-only.
type LineageRepository interface {
	AppendEvent(ctx context.Context, event *model.LineageEvent) error
	// FindEventsByJob returns the job's events ordered by timestamp ascending.
	FindEventsByJob(ctx context.Context, jobID string) ([]*model.LineageEvent, error)
	// FindEventsBySource returns events for sourceID ordered by timestamp descending.
	FindEventsBySource(ctx context.Context, sourceID string) ([]*model.LineageEvent, error)
	// FindEventsByType returns every event of the given type ordered by timestamp ascending.
	FindEventsByType(ctx context.Context, eventType model.EventType) ([]*model.LineageEvent, error)
}

// ExceptionRepository persists DataExceptions.
type ExceptionRepository interface {
	SaveException(ctx context.Context, exc *model.DataException) error
	UpdateException(ctx context.Context, exc *model.DataException) error
	FindExceptionByID(ctx context.Context, id string) (*model.DataException, error)
	// FindExceptionsByJob returns the job's exceptions newest first.
	FindExceptionsByJob(ctx context.Context, jobID string) ([]*model.DataException, error)
	// FindRecentExceptions returns at most limit exceptions newest first. limit <= 0 means all.
	FindRecentExceptions(ctx context.Context, limit int) ([]*model.DataException, error)
}

// ApprovalRepository persists WorkflowApprovals.
type ApprovalRepository interface {
	SaveApproval(ctx context.Context, approval *model.WorkflowApproval) error
	// UpdateApproval follows the same optimistic locking contract as UpdateJob.
	UpdateApproval(ctx context.Context, approval *model.WorkflowApproval) error
	FindApprovalByID(ctx context.Context, id string) (*model.WorkflowApproval, error)
	// FindApprovalsByState returns approvals in state, oldest submission first.
	FindApprovalsByState(ctx context.Context, state model.ApprovalState) ([]*model.WorkflowApproval, error)
	FindApprovalsByJob(ctx context.Context, jobID string) ([]*model.WorkflowApproval, error)
}

// DataSourceRepository persists DataSources.
type DataSourceRepository interface {
	SaveDataSource(ctx context.Context, source *model.DataSource) error
	FindDataSourceByID(ctx context.Context, id string) (*model.DataSource, error)
	FindActiveDataSources(ctx context.Context) ([]*model.DataSource, error)
}

// Store bundles every repository. Both infrastructure implementations satisfy it.
type Store interface {
	JobRepository
	SchemaRepository
	LineageRepository
	ExceptionRepository
	ApprovalRepository
	DataSourceRepository
}
