package usecase

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

// SimpleJobExplorer implements JobExplorer on top of the store.
type SimpleJobExplorer struct {
	store repository.Store
}

// NewSimpleJobExplorer creates a SimpleJobExplorer.
func NewSimpleJobExplorer(store repository.Store) *SimpleJobExplorer {
	return &SimpleJobExplorer{store: store}
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)

func (e *SimpleJobExplorer) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := e.store.FindJobByID(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("explorer", exception.KindNotFound, "job %s not found", jobID, err)
		}
		return nil, exception.NewEtlError("explorer", exception.KindInternal, "failed to load job", err)
	}
	return job, nil
}

func (e *SimpleJobExplorer) FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	jobs, err := e.store.FindJobsByStatus(ctx, status)
	if err != nil {
		return nil, exception.NewEtlError("explorer", exception.KindInternal, "failed to load jobs", err)
	}
	return jobs, nil
}

func (e *SimpleJobExplorer) FindJobsBySource(ctx context.Context, sourceID string) ([]*model.Job, error) {
	jobs, err := e.store.FindJobsBySource(ctx, sourceID)
	if err != nil {
		return nil, exception.NewEtlError("explorer", exception.KindInternal, "failed to load jobs", err)
	}
	return jobs, nil
}

// SchemasForJob lists the schemas detected for a job.
func (e *SimpleJobExplorer) SchemasForJob(ctx context.Context, jobID string) ([]*model.DetectedSchema, error) {
	schemas, err := e.store.FindSchemasByJob(ctx, jobID)
	if err != nil {
		return nil, exception.NewEtlError("explorer", exception.KindInternal, "failed to load schemas", err)
	}
	return schemas, nil
}

// ListDataSources lists the active data sources.
func (e *SimpleJobExplorer) ListDataSources(ctx context.Context) ([]*model.DataSource, error) {
	sources, err := e.store.FindActiveDataSources(ctx)
	if err != nil {
		return nil, exception.NewEtlError("explorer", exception.KindInternal, "failed to load data sources", err)
	}
	return sources, nil
}
