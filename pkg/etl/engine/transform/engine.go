// Package transform applies ordered transformation rules to tabular job data.
package transform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/schema"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Table      *model.Table
	Before     *model.TableProfile
	After      *model.TableProfile
	Diff       model.SchemaDiff
	Validation model.ValidationResult
	// Skipped lists rule types that were reported as unknown and not applied.
	Skipped []model.RuleType
}

// Engine runs rule pipelines and owns the running -> completed|failed part of the job lifecycle.
type Engine struct {
	cfg      *config.Config
	jobs     repository.JobRepository
	lineage  ports.LineageRecorder
	reporter ports.ExceptionReporter
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// EngineParams are the dependencies of NewEngine.
type EngineParams struct {
	fx.In
	Config   *config.Config
	Jobs     repository.JobRepository
	Lineage  ports.LineageRecorder
	Reporter ports.ExceptionReporter
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewEngine creates an Engine.
func NewEngine(p EngineParams) *Engine {
	return &Engine{
		cfg:      p.Config,
		jobs:     p.Jobs,
		lineage:  p.Lineage,
		reporter: p.Reporter,
		recorder: p.Recorder,
		tracer:   p.Tracer,
	}
}

// TableFromDocument extracts a table from a job document. Hierarchical documents are accepted
// when they hold an object or an array of objects; raw documents must be decoded first.
func TableFromDocument(doc model.Document) (*model.Table, error) {
	switch d := doc.(type) {
	case model.TabularDocument:
		if d.Table == nil {
			return model.NewTable(), nil
		}
		return d.Table.Clone(), nil
	case model.HierarchicalDocument:
		records, err := d.Records()
		if err != nil {
			return nil, exception.NewEtlError("transform", exception.KindUnsupportedInput, "hierarchical document is not tabular", err)
		}
		return model.TableFromRecords(records), nil
	case model.RawDocument:
		return nil, exception.NewEtlErrorf("transform", exception.KindUnsupportedInput, "raw %s document must be decoded before transformation", d.Format)
	case nil:
		return nil, exception.NewEtlErrorf("transform", exception.KindUnsupportedInput, "job has no input document")
	}
	return nil, exception.NewEtlErrorf("transform", exception.KindUnsupportedInput, "unsupported document %T", doc)
}

// Transform runs rules in order over a copy of input. Unknown rule types are reported against
// jobID and skipped; any other failure aborts the run.
func (e *Engine) Transform(ctx context.Context, jobID string, input *model.Table, rules model.RuleSet) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = exception.NewEtlErrorf("transform", exception.KindTransformationFault, "panic while applying rules: %v", r)
		}
	}()

	res = &Result{Before: schema.ProfileTable(input)}
	current := input.Clone()
	for i, spec := range rules {
		rule, decodeErr := model.DecodeRule(spec)
		if errors.Is(decodeErr, model.ErrUnknownRuleType) {
			e.report(ctx, jobID, model.ExceptionUnknownRule, fmt.Sprintf("Unknown transformation rule: %s", spec.Type), model.SeverityMedium,
				model.Metadata{"rule_type": string(spec.Type), "position": i})
			res.Skipped = append(res.Skipped, spec.Type)
			continue
		}
		if decodeErr != nil {
			return nil, decodeErr
		}

		spanCtx, end := e.tracer.StartSpan(ctx, "etl.rule.apply", map[string]interface{}{"rule": string(spec.Type), "position": i})
		before := current.Len()
		next, applyErr := ApplyRule(current, rule, e.cfg.ETL.Transform.DefaultCoercionPolicy)
		if applyErr != nil {
			e.tracer.RecordError(spanCtx, "transform", applyErr)
			end()
			return nil, applyErr
		}
		current = next
		e.recorder.RecordRuleApplied(spanCtx, spec.Type, before, current.Len())
		end()
		logger.Debugf("Rule %d (%s) applied to job '%s': %d -> %d rows.", i, spec.Type, jobID, before, current.Len())
	}

	res.Table = current
	res.After = schema.ProfileTable(current)
	res.Diff = model.CompareProfiles(res.Before, res.After)
	res.Validation = Validate(current, e.cfg.ETL.Transform.HighNullThreshold)
	return res, nil
}

// Apply runs rules against a pending job and persists the outcome. The job ends completed with
// an output, or failed with its error message and no output. job is updated in place.
func (e *Engine) Apply(ctx context.Context, job *model.Job, rules model.RuleSet) (*model.JobOutput, error) {
	if err := job.MarkAsRunning(); err != nil {
		return nil, exception.NewEtlError("transform", exception.KindInvalidState, "job cannot be started", err)
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	output, err := e.run(ctx, job, rules)
	if err != nil {
		return nil, e.fail(ctx, job, rules, err)
	}

	now := time.Now()
	job.Rules = rules
	job.RulesAppliedAt = &now
	if err := job.MarkAsCompleted(output); err != nil {
		return nil, exception.NewEtlError("transform", exception.KindInvalidState, "job cannot be completed", err)
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	logger.Infof("Job '%s' completed: %d -> %d rows, validation passed: %t.", job.ID, output.OriginalRowCount, output.RowCount, output.Validation.Passed)
	return output, nil
}

func (e *Engine) run(ctx context.Context, job *model.Job, rules model.RuleSet) (*model.JobOutput, error) {
	input, err := TableFromDocument(job.Input.Document)
	if err != nil {
		return nil, err
	}
	res, err := e.Transform(ctx, job.ID, input, rules)
	if err != nil {
		return nil, err
	}
	if _, err := e.lineage.RecordTransformation(ctx, job.ID, rules.Types(), res.Before, res.After); err != nil {
		return nil, err
	}
	if !res.Validation.Passed {
		e.report(ctx, job.ID, model.ExceptionValidationFailed, "Validation issues after transformation", model.SeverityLow,
			model.Metadata{"issues": toInterfaces(res.Validation.Issues)})
	}
	diff := res.Diff
	return &model.JobOutput{
		Data:             model.TabularDocument{Table: res.Table},
		Validation:       res.Validation,
		RowCount:         res.Table.Len(),
		OriginalRowCount: input.Len(),
		Summary:          model.TransformationSummary{RulesApplied: len(rules), RulesList: rules.Types()},
		SchemaDiff:       &diff,
	}, nil
}

// fail marks the job failed and reports a high severity exception. The returned error wraps
// cause and any persistence failure.
func (e *Engine) fail(ctx context.Context, job *model.Job, rules model.RuleSet, cause error) error {
	logger.Errorf("Job '%s' failed during transformation: %v", job.ID, cause)
	var result *multierror.Error
	fault := cause
	if !exception.IsKind(cause, exception.KindTransformationFault) {
		fault = exception.NewEtlError("transform", exception.KindTransformationFault, exception.ExtractErrorMessage(cause), cause)
	}
	result = multierror.Append(result, fault)

	metadata := model.Metadata{"error": cause.Error(), "rules": ruleNames(rules)}
	message := exception.ExtractErrorMessage(cause)
	if err := job.MarkAsFailed(message); err != nil {
		result = multierror.Append(result, err)
	} else if err := e.persistFailure(ctx, job, message); err != nil {
		result = multierror.Append(result, err)
		metadata["persist_error"] = err.Error()
	}
	e.report(ctx, job.ID, model.ExceptionTransformationError, message, model.SeverityHigh, metadata)

	if result.Len() == 1 {
		return fault
	}
	return result.ErrorOrNil()
}

// persistFailure stores a failed job. When the update is rejected the job is reloaded and the
// failure is applied once more to the fresh copy, unless another writer already finished it.
func (e *Engine) persistFailure(ctx context.Context, job *model.Job, message string) error {
	err := e.jobs.UpdateJob(ctx, job)
	if err == nil {
		return nil
	}
	logger.Warnf("Job '%s': storing failed status was rejected, retrying on a fresh copy: %v", job.ID, err)
	fresh, findErr := e.jobs.FindJobByID(ctx, job.ID)
	if findErr != nil {
		return multierror.Append(err, findErr)
	}
	if fresh.Status.IsFinished() {
		return exception.NewEtlErrorf("transform", exception.KindInvalidState, "job already %s", fresh.Status, err)
	}
	if markErr := fresh.MarkAsFailed(message); markErr != nil {
		return multierror.Append(err, markErr)
	}
	if retryErr := e.jobs.UpdateJob(ctx, fresh); retryErr != nil {
		return multierror.Append(err, retryErr)
	}
	*job = *fresh
	return nil
}

func (e *Engine) report(ctx context.Context, jobID, excType, message string, severity model.Severity, metadata model.Metadata) {
	if _, err := e.reporter.Report(ctx, jobID, excType, message, severity, metadata); err != nil {
		logger.Warnf("Failed to report %s exception for job '%s': %v", excType, jobID, err)
	}
}

func ruleNames(rules model.RuleSet) []interface{} {
	out := make([]interface{}, len(rules))
	for i, r := range rules {
		out[i] = string(r.Type)
	}
	return out
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
