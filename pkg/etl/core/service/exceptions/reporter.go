// Package exceptions records job-scoped data exceptions, proposes corrective actions and
// dispatches the confident ones to the transformation engine.
package exceptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/notification"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// Reporter implements ports.ExceptionReporter.
type Reporter struct {
	cfg         *config.Config
	repo        repository.ExceptionRepository
	notifier    *notification.Dispatcher
	corrections ports.CorrectionDispatcher
	recorder    metrics.MetricRecorder
}

// ReporterParams are the dependencies of NewReporter.
type ReporterParams struct {
	fx.In
	Config      *config.Config
	Repo        repository.ExceptionRepository
	Notifier    *notification.Dispatcher
	Corrections ports.CorrectionDispatcher
	Recorder    metrics.MetricRecorder
}

// NewReporter creates a Reporter.
func NewReporter(p ReporterParams) *Reporter {
	return &Reporter{
		cfg:         p.Config,
		repo:        p.Repo,
		notifier:    p.Notifier,
		corrections: p.Corrections,
		recorder:    p.Recorder,
	}
}

// Report persists a new exception, alerts on high and critical severity, attaches suggestions
// and attempts every suggestion whose confidence exceeds the auto-correction threshold.
// The returned exception reflects the attached suggestions.
func (r *Reporter) Report(ctx context.Context, jobID, exceptionType, message string, severity model.Severity, metadata model.Metadata) (*model.DataException, error) {
	exc := model.NewDataException(jobID, exceptionType, message, severity, metadata.Clone())
	if err := r.repo.SaveException(ctx, exc); err != nil {
		return nil, exception.NewEtlErrorf("exceptions", exception.KindInternal, "failed to persist %s exception for job %s", exceptionType, jobID, err)
	}
	r.recorder.RecordException(ctx, exc)
	logger.Infof("Exception %s (%s, %s) reported for job '%s': %s", exc.ID, exceptionType, severity, jobID, message)

	if severity.RequiresAlert() {
		r.notifier.NotifyRoles(ctx, r.cfg.ETL.Workflow.AlertRoles,
			fmt.Sprintf("Data Exception Alert: %s", strings.ToUpper(string(severity))),
			fmt.Sprintf("Job: %s\nType: %s\nMessage: %s\nException ID: %s", jobID, exceptionType, message, exc.ID))
	}

	suggestions := Suggest(exceptionType)
	if len(suggestions) == 0 {
		return exc, nil
	}
	exc.Metadata[model.MetaSuggestions] = suggestionsToMetadata(suggestions)
	if err := r.repo.UpdateException(ctx, exc); err != nil {
		logger.Warnf("Failed to attach suggestions to exception %s: %v", exc.ID, err)
	}

	for _, s := range suggestions {
		if s.Confidence > r.cfg.ETL.Exception.AutoCorrectionThreshold {
			r.autoCorrect(ctx, exc, s)
		}
	}
	return exc, nil
}

// autoCorrect dispatches one correction and reports its outcome. Outcome exception types
// have no suggestions, so this never recurses.
func (r *Reporter) autoCorrect(ctx context.Context, exc *model.DataException, s model.Suggestion) {
	rule, ok := CorrectionRule(s.Action, exc.Metadata)
	var err error
	if !ok {
		err = exception.NewEtlErrorf("exceptions", exception.KindAutoCorrectionFailure, "no executable rule for action %s", s.Action)
	} else {
		err = r.corrections.Dispatch(ctx, ports.CorrectionCommand{
			JobID:       exc.JobID,
			ExceptionID: exc.ID,
			Suggestion:  s,
			Rule:        rule,
		})
	}

	if err != nil {
		logger.Warnf("Auto-correction '%s' for exception %s failed: %v", s.Action, exc.ID, err)
		r.reportOutcome(ctx, exc.JobID, model.ExceptionAutoCorrectionFailed,
			fmt.Sprintf("Auto-correction failed: %s", exception.ExtractErrorMessage(err)), model.SeverityMedium,
			model.Metadata{
				"original_exception_id": exc.ID,
				"failed_correction":     suggestionToMetadata(s),
				"error":                 err.Error(),
			})
		return
	}
	r.reportOutcome(ctx, exc.JobID, model.ExceptionAutoCorrectionApplied,
		fmt.Sprintf("Auto-correction applied: %s", s.Description), model.SeverityLow,
		model.Metadata{
			"original_exception_id": exc.ID,
			"correction_type":       s.Type,
			"correction_action":     s.Action,
			"auto_correction":       true,
			"timestamp":             time.Now().UTC().Format(time.RFC3339Nano),
		})
}

func (r *Reporter) reportOutcome(ctx context.Context, jobID, exceptionType, message string, severity model.Severity, metadata model.Metadata) {
	if _, err := r.Report(ctx, jobID, exceptionType, message, severity, metadata); err != nil {
		logger.Errorf("Failed to record %s for job '%s': %v", exceptionType, jobID, err)
	}
}

// Resolve marks an exception resolved. The resolution fields are written once and never cleared.
func (r *Reporter) Resolve(ctx context.Context, exceptionID, resolvedBy, notes string) (*model.DataException, error) {
	exc, err := r.repo.FindExceptionByID(ctx, exceptionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("exceptions", exception.KindNotFound, "exception %s not found", exceptionID, err)
		}
		return nil, exception.NewEtlError("exceptions", exception.KindInternal, "failed to load exception", err)
	}
	if exc.Resolved {
		return nil, exception.NewEtlErrorf("exceptions", exception.KindInvalidState, "exception %s is already resolved", exceptionID)
	}
	now := time.Now()
	exc.Resolved = true
	exc.ResolvedBy = &resolvedBy
	exc.ResolutionNotes = notes
	exc.ResolvedAt = &now
	if err := r.repo.UpdateException(ctx, exc); err != nil {
		return nil, exception.NewEtlError("exceptions", exception.KindInternal, "failed to persist resolution", err)
	}

	r.notifier.NotifyRoles(ctx, r.cfg.ETL.Workflow.AlertRoles,
		fmt.Sprintf("Exception Resolved: %s", exc.Type),
		fmt.Sprintf("Exception %s on job %s was resolved by %s.\nNotes: %s", exc.ID, exc.JobID, resolvedBy, notes))
	return exc, nil
}

// ForJob lists a job's exceptions, newest first.
func (r *Reporter) ForJob(ctx context.Context, jobID string) ([]*model.DataException, error) {
	excs, err := r.repo.FindExceptionsByJob(ctx, jobID)
	if err != nil {
		return nil, exception.NewEtlError("exceptions", exception.KindInternal, "failed to load exceptions", err)
	}
	return excs, nil
}

// Recent lists the newest exceptions. limit <= 0 uses the configured default.
func (r *Reporter) Recent(ctx context.Context, limit int) ([]*model.DataException, error) {
	if limit <= 0 {
		limit = r.cfg.ETL.Exception.RecentLimit
	}
	excs, err := r.repo.FindRecentExceptions(ctx, limit)
	if err != nil {
		return nil, exception.NewEtlError("exceptions", exception.KindInternal, "failed to load exceptions", err)
	}
	return excs, nil
}

// Statistics summarizes every exception, or those of one job when jobID is set.
func (r *Reporter) Statistics(ctx context.Context, jobID *string) (*model.ExceptionStatistics, error) {
	var (
		excs []*model.DataException
		err  error
	)
	if jobID != nil {
		excs, err = r.repo.FindExceptionsByJob(ctx, *jobID)
	} else {
		excs, err = r.repo.FindRecentExceptions(ctx, 0)
	}
	if err != nil {
		return nil, exception.NewEtlError("exceptions", exception.KindInternal, "failed to load exceptions", err)
	}

	stats := &model.ExceptionStatistics{
		TotalExceptions:   len(excs),
		SeverityBreakdown: make(map[model.Severity]int, len(model.Severities)),
		ExceptionTypes:    map[string]int{},
	}
	for _, sev := range model.Severities {
		stats.SeverityBreakdown[sev] = 0
	}
	for _, e := range excs {
		if e.Resolved {
			stats.ResolvedExceptions++
		}
		stats.SeverityBreakdown[e.Severity]++
		stats.ExceptionTypes[e.Type]++
	}
	stats.UnresolvedExceptions = stats.TotalExceptions - stats.ResolvedExceptions
	if stats.TotalExceptions > 0 {
		stats.ResolutionRate = float64(stats.ResolvedExceptions) / float64(stats.TotalExceptions) * 100
	}
	return stats, nil
}

var _ ports.ExceptionReporter = (*Reporter)(nil)
