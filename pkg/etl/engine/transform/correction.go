package transform

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// HandleCorrection applies the command's single rule to the job's latest data. A completed job
// gets a recomputed output; any other live job gets its input replaced so the next run or
// retry starts from the corrected data. Status is never changed.
func (e *Engine) HandleCorrection(ctx context.Context, cmd ports.CorrectionCommand) error {
	job, err := e.jobs.FindJobByID(ctx, cmd.JobID)
	if err != nil {
		return exception.NewEtlError("transform", exception.KindAutoCorrectionFailure, "job lookup failed", err)
	}
	if job.Status == model.JobStatusCancelled || job.Status == model.JobStatusRunning {
		return exception.NewEtlErrorf("transform", exception.KindAutoCorrectionFailure, "job %s is %s", job.ID, job.Status)
	}

	source := job.Input.Document
	if t, ok := job.Output.Table(); ok {
		source = model.TabularDocument{Table: t}
	}
	input, err := TableFromDocument(source)
	if err != nil {
		return exception.NewEtlError("transform", exception.KindAutoCorrectionFailure, "job data is not tabular", err)
	}

	rules := model.RuleSet{cmd.Rule}
	res, err := e.Transform(ctx, job.ID, input, rules)
	if err != nil {
		return exception.NewEtlError("transform", exception.KindAutoCorrectionFailure, "corrective rule failed", err)
	}
	if len(res.Skipped) > 0 {
		return exception.NewEtlErrorf("transform", exception.KindAutoCorrectionFailure, "corrective rule %s is not executable", cmd.Rule.Type)
	}

	if job.Status == model.JobStatusCompleted {
		prev := job.Output
		diff := res.Diff
		job.Output = &model.JobOutput{
			Data:             model.TabularDocument{Table: res.Table},
			Validation:       res.Validation,
			RowCount:         res.Table.Len(),
			OriginalRowCount: prev.OriginalRowCount,
			Summary: model.TransformationSummary{
				RulesApplied: prev.Summary.RulesApplied + 1,
				RulesList:    append(append([]model.RuleType{}, prev.Summary.RulesList...), cmd.Rule.Type),
			},
			SchemaDiff: &diff,
		}
		job.Rules = append(job.Rules, cmd.Rule)
	} else {
		job.Input.Document = model.TabularDocument{Table: res.Table}
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return exception.NewEtlError("transform", exception.KindAutoCorrectionFailure, "failed to persist corrected job", err)
	}

	if _, err := e.lineage.RecordEvent(ctx, job.ID, model.EventAutoCorrection, model.Metadata{
		"exception_id": cmd.ExceptionID,
		"action":       cmd.Suggestion.Action,
		"rule":         string(cmd.Rule.Type),
		"rows_before":  input.Len(),
		"rows_after":   res.Table.Len(),
	}); err != nil {
		logger.Warnf("Failed to record auto-correction lineage for job '%s': %v", job.ID, err)
	}
	logger.Infof("Auto-correction '%s' applied to job '%s': %d -> %d rows.", cmd.Suggestion.Action, job.ID, input.Len(), res.Table.Len())
	return nil
}

var _ ports.CorrectionHandler = (*Engine)(nil)
