package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage"
	"github.com/tigerroll/surfin-etl/pkg/etl/component/writer"
	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/lineage"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/retry"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// RetryReasonManual is the retry reason used when the caller gives none.
const RetryReasonManual = "manual_retry"

// DefaultJobOperator implements JobOperator.
type DefaultJobOperator struct {
	cfg     *config.Config
	jobs    repository.JobRepository
	lineage *lineage.Tracker
	storage storage.StorageConnection
	policy  retry.RetryPolicy
}

// DefaultJobOperatorParams are the dependencies of NewDefaultJobOperator.
type DefaultJobOperatorParams struct {
	fx.In
	Config  *config.Config
	Jobs    repository.JobRepository
	Lineage *lineage.Tracker
	Storage storage.StorageConnection
}

// NewDefaultJobOperator creates a DefaultJobOperator.
func NewDefaultJobOperator(p DefaultJobOperatorParams) *DefaultJobOperator {
	return &DefaultJobOperator{
		cfg:     p.Config,
		jobs:    p.Jobs,
		lineage: p.Lineage,
		storage: p.Storage,
		policy:  retry.NewPolicy(p.Config.ETL.Retry),
	}
}

var (
	_ JobOperator      = (*DefaultJobOperator)(nil)
	_ ports.JobRetrier = (*DefaultJobOperator)(nil)
)

func (o *DefaultJobOperator) load(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("operator", exception.KindNotFound, "job %s not found", jobID, err)
		}
		return nil, exception.NewEtlError("operator", exception.KindInternal, "failed to load job", err)
	}
	return job, nil
}

// Retry creates a pending copy of a failed or cancelled job with the same source, input and
// rules. attributes are merged into the copy's input attributes and the original is marked
// as retried by the copy.
func (o *DefaultJobOperator) Retry(ctx context.Context, jobID string, reason string, attributes model.Metadata) (*model.Job, error) {
	original, err := o.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if original.Status != model.JobStatusFailed && original.Status != model.JobStatusCancelled {
		return nil, exception.NewEtlErrorf("operator", exception.KindInvalidState, "job %s is %s, only failed or cancelled jobs can be retried", jobID, original.Status)
	}
	if reason == "" {
		reason = RetryReasonManual
	}

	input := original.Input.Clone()
	if input.Attributes == nil {
		input.Attributes = model.Metadata{}
	}
	delete(input.Attributes, model.AttrRetriedBy)
	for k, v := range attributes {
		input.Attributes[k] = v
	}

	next := model.NewJob(fmt.Sprintf("Retry - %s", original.Name), fmt.Sprintf("Retry of job %s", original.ID), input, original.CreatedBy)
	next.SourceID = original.SourceID
	next.Rules = append(model.RuleSet{}, original.Rules...)
	if err := o.jobs.SaveJob(ctx, next); err != nil {
		return nil, exception.NewEtlError("operator", exception.KindInternal, "failed to save retry job", err)
	}
	if _, err := o.lineage.RecordIngestion(ctx, next.ID, next.SourceID, model.Metadata{
		"retry_of_job":   original.ID,
		"retry_reason":   reason,
		"original_error": original.ErrorMessage,
	}); err != nil {
		logger.Warnf("Retry: %v", err)
	}

	if original.Input.Attributes == nil {
		original.Input.Attributes = model.Metadata{}
	}
	original.Input.Attributes[model.AttrRetriedBy] = next.ID
	if err := o.jobs.UpdateJob(ctx, original); err != nil {
		// The retry exists; a sweep may still pick the original up again.
		logger.Errorf("Retry: failed to mark job '%s' as retried by '%s': %v", original.ID, next.ID, err)
	}
	logger.Infof("Job '%s' retried as '%s' (%s).", original.ID, next.ID, reason)
	return next, nil
}

// Cancel stops a pending job.
func (o *DefaultJobOperator) Cancel(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := o.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusPending {
		return nil, exception.NewEtlErrorf("operator", exception.KindInvalidState, "job %s is %s, only pending jobs can be cancelled", jobID, job.Status)
	}
	if err := job.MarkAsCancelled(); err != nil {
		return nil, exception.NewEtlError("operator", exception.KindInvalidState, "job cannot be cancelled", err)
	}
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	if _, err := o.lineage.RecordEvent(ctx, job.ID, model.EventJobCancelled, model.Metadata{"reason": "external_cancellation"}); err != nil {
		logger.Warnf("Cancel: %v", err)
	}
	logger.Infof("Job '%s' cancelled.", job.ID)
	return job, nil
}

// Export writes the output table of a completed job as Parquet under destination and records
// the output lineage event.
func (o *DefaultJobOperator) Export(ctx context.Context, jobID, destination string) (*writer.Export, error) {
	destination = strings.Trim(strings.TrimSpace(destination), "/")
	if destination == "" {
		return nil, exception.NewEtlError("operator", exception.KindValidation, "export destination is required", nil)
	}
	job, err := o.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted || job.Output == nil {
		return nil, exception.NewEtlErrorf("operator", exception.KindInvalidState, "job %s is %s, only completed jobs can be exported", jobID, job.Status)
	}
	table, ok := job.Output.Table()
	if !ok {
		return nil, exception.NewEtlErrorf("operator", exception.KindUnsupportedInput, "output of job %s is not tabular", jobID)
	}

	pw, err := writer.NewParquetWriter("export", map[string]interface{}{
		"output_base_dir":  o.cfg.ETL.Export.OutputBaseDir,
		"compression_type": o.cfg.ETL.Export.CompressionType,
	}, o.storage)
	if err != nil {
		return nil, err
	}

	var export *writer.Export
	err = retry.Do(ctx, o.policy, "export "+jobID, func(ctx context.Context) error {
		var werr error
		export, werr = pw.Write(ctx, o.cfg.ETL.Storage.BucketName, destination, job.ID, table)
		return werr
	})
	if err != nil {
		return nil, err
	}

	if _, err := o.lineage.RecordOutput(ctx, job.ID, destination, model.Metadata{
		"format":      "parquet",
		"row_count":   export.RowCount,
		"object_name": export.ObjectName,
		"bucket":      export.Bucket,
	}); err != nil {
		logger.Warnf("Export: %v", err)
	}
	return export, nil
}
