// Package workflow gates job effects behind human approval and runs the automatic retry sweep.
//
// An approval moves pending -> approved | rejected exactly once. Approving dispatches the
// effect named by the approval type; rejecting cancels the job when it has not started yet.
package workflow

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
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/lineage"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/notification"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// RetryReasonAutomatic tags retries created by AutoRetryFailed.
const RetryReasonAutomatic = "automatic_retry_on_failure"

// Engine is the approval workflow.
type Engine struct {
	cfg       *config.Config
	jobs      repository.JobRepository
	approvals repository.ApprovalRepository
	lineage   *lineage.Tracker
	notifier  *notification.Dispatcher
	identity  ports.IdentityProvider
	executor  ports.JobExecutor
	retrier   ports.JobRetrier
	recorder  metrics.MetricRecorder
}

// EngineParams are the dependencies of NewEngine.
type EngineParams struct {
	fx.In
	Config    *config.Config
	Jobs      repository.JobRepository
	Approvals repository.ApprovalRepository
	Lineage   *lineage.Tracker
	Notifier  *notification.Dispatcher
	Identity  ports.IdentityProvider
	Executor  ports.JobExecutor
	Retrier   ports.JobRetrier
	Recorder  metrics.MetricRecorder
}

// NewEngine creates a workflow Engine.
func NewEngine(p EngineParams) *Engine {
	return &Engine{
		cfg:       p.Config,
		jobs:      p.Jobs,
		approvals: p.Approvals,
		lineage:   p.Lineage,
		notifier:  p.Notifier,
		identity:  p.Identity,
		executor:  p.Executor,
		retrier:   p.Retrier,
		recorder:  p.Recorder,
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (e *Engine) findJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := e.jobs.FindJobByID(ctx, jobID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("workflow", exception.KindNotFound, "job %s not found", jobID, err)
		}
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to load job", err)
	}
	return job, nil
}

func (e *Engine) recordEvent(ctx context.Context, jobID string, eventType model.EventType, metadata model.Metadata) {
	if _, err := e.lineage.RecordEvent(ctx, jobID, eventType, metadata); err != nil {
		logger.Warnf("Workflow: %v", err)
	}
}

// Submit opens a pending approval for a job and notifies every approver.
func (e *Engine) Submit(ctx context.Context, jobID, submittedBy string, approvalType model.ApprovalType, comments string) (*model.WorkflowApproval, error) {
	if _, err := model.ParseApprovalType(string(approvalType)); err != nil {
		return nil, exception.NewEtlError("workflow", exception.KindValidation, "invalid approval type", err)
	}
	job, err := e.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	approval := model.NewWorkflowApproval(job.ID, approvalType, submittedBy, comments)
	if err := e.approvals.SaveApproval(ctx, approval); err != nil {
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to save approval", err)
	}
	e.recordEvent(ctx, job.ID, model.EventApprovalSubmitted, model.Metadata{
		"approval_id":   approval.ID,
		"approval_type": string(approvalType),
		"submitted_by":  submittedBy,
		"comments":      comments,
	})
	logger.Infof("Approval %s (%s) submitted for job '%s' by '%s'.", approval.ID, approvalType, job.ID, submittedBy)

	e.notifier.NotifyRoles(ctx, e.cfg.ETL.Workflow.ApproverRoles,
		fmt.Sprintf("Approval Required: %s", approvalType),
		fmt.Sprintf("Job %s (%s) was submitted for %s approval by %s.\nApproval ID: %s\nComments: %s",
			job.ID, job.Name, approvalType, submittedBy, approval.ID, comments))
	return approval, nil
}

// authorize checks that userID exists and holds an approver role.
func (e *Engine) authorize(ctx context.Context, userID string) error {
	user, err := e.identity.FindUser(ctx, userID)
	if err != nil {
		return exception.NewEtlErrorf("workflow", exception.KindPermission, "unknown user %s", userID, err)
	}
	if !e.cfg.IsApprover(user.Role) {
		return exception.NewEtlErrorf("workflow", exception.KindPermission, "user %s with role %s cannot decide approvals", userID, user.Role)
	}
	return nil
}

// Approve is Decide with DecisionApprove.
func (e *Engine) Approve(ctx context.Context, approvalID, approverID, comments string) (*model.WorkflowApproval, error) {
	return e.Decide(ctx, approvalID, approverID, model.DecisionApprove, comments)
}

// Reject is Decide with DecisionReject. comments are mandatory.
func (e *Engine) Reject(ctx context.Context, approvalID, approverID, comments string) (*model.WorkflowApproval, error) {
	return e.Decide(ctx, approvalID, approverID, model.DecisionReject, comments)
}

// Decide records a decision on a pending approval. A decided approval is final: deciding it
// again fails with KindInvalidState and leaves it unchanged. Failures of the approved effect
// are recorded on the job and in lineage, not returned.
func (e *Engine) Decide(ctx context.Context, approvalID, approverID string, decision model.Decision, comments string) (*model.WorkflowApproval, error) {
	if err := e.authorize(ctx, approverID); err != nil {
		return nil, err
	}
	if decision == model.DecisionReject && strings.TrimSpace(comments) == "" {
		return nil, exception.NewEtlError("workflow", exception.KindValidation, "rejection comments are required", nil)
	}
	approval, err := e.approvals.FindApprovalByID(ctx, approvalID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("workflow", exception.KindNotFound, "approval %s not found", approvalID, err)
		}
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to load approval", err)
	}
	if approval.State != model.ApprovalPending {
		return nil, exception.NewEtlErrorf("workflow", exception.KindInvalidState, "approval %s is already %s", approvalID, approval.State)
	}

	if comments != "" {
		label := "Approver comments"
		if decision == model.DecisionReject {
			label = "Rejection reason"
		}
		approval.AppendComment(label, comments)
	}
	if err := approval.Decide(decision, approverID); err != nil {
		return nil, exception.NewEtlError("workflow", exception.KindValidation, "invalid decision", err)
	}
	if err := e.approvals.UpdateApproval(ctx, approval); err != nil {
		if exception.IsOptimisticLockingFailure(err) {
			return nil, exception.NewEtlErrorf("workflow", exception.KindInvalidState, "approval %s was decided concurrently", approvalID, err)
		}
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to save decision", err)
	}
	e.recorder.RecordApprovalDecision(ctx, approval)
	logger.Infof("Approval %s %s by '%s'.", approval.ID, approval.State, approverID)

	if decision == model.DecisionApprove {
		e.recordEvent(ctx, approval.JobID, model.EventApprovalApproved, model.Metadata{
			"approval_id": approval.ID,
			"approved_by": approverID,
			"comments":    comments,
		})
		e.execute(ctx, approval)
	} else {
		e.recordEvent(ctx, approval.JobID, model.EventApprovalRejected, model.Metadata{
			"approval_id":      approval.ID,
			"rejected_by":      approverID,
			"rejection_reason": comments,
		})
		e.cancelJob(ctx, approval)
	}

	outcome := "Approved"
	if decision == model.DecisionReject {
		outcome = "Rejected"
	}
	e.notifier.NotifyUsers(ctx, []string{approval.SubmittedBy},
		fmt.Sprintf("Approval %s: Job %s", outcome, approval.JobID),
		fmt.Sprintf("Your %s request %s was %s by %s.\n\n%s", approval.Type, approval.ID, strings.ToLower(outcome), approverID, approval.Comments))
	return approval, nil
}

// cancelJob cancels the job of a rejected approval. Jobs that already left pending keep their
// status since transitions never go backwards.
func (e *Engine) cancelJob(ctx context.Context, approval *model.WorkflowApproval) {
	job, err := e.findJob(ctx, approval.JobID)
	if err != nil {
		logger.Warnf("Workflow: cannot cancel job of approval %s: %v", approval.ID, err)
		return
	}
	if err := job.MarkAsCancelled(); err != nil {
		logger.Warnf("Workflow: job '%s' not cancelled after rejection: %v", job.ID, err)
		return
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		logger.Errorf("Workflow: failed to persist cancellation of job '%s': %v", job.ID, err)
		return
	}
	e.recordEvent(ctx, job.ID, model.EventJobCancelled, model.Metadata{"approval_id": approval.ID, "reason": "approval_rejected"})
}

// execute dispatches the effect of an approved approval by type.
func (e *Engine) execute(ctx context.Context, approval *model.WorkflowApproval) {
	switch approval.Type {
	case model.ApprovalDataPromotion:
		e.promote(ctx, approval.JobID)
	case model.ApprovalJobExecution:
		if _, err := e.executor.Run(ctx, approval.JobID); err != nil {
			logger.Errorf("Workflow: execution of job '%s' failed: %v", approval.JobID, err)
		}
	case model.ApprovalSchemaChange:
		e.applySchemaChange(ctx, approval.JobID)
	}
}

// promote moves the job running -> completed, keeping any existing output. Any failure leaves
// the job failed with a data_promotion_failed event.
func (e *Engine) promote(ctx context.Context, jobID string) {
	job, err := e.findJob(ctx, jobID)
	if err == nil {
		err = e.runPromotion(ctx, job)
	}
	if err == nil {
		return
	}

	logger.Errorf("Workflow: promotion of job '%s' failed: %v", jobID, err)
	if job != nil && job.Status == model.JobStatusRunning {
		if markErr := job.MarkAsFailed(exception.ExtractErrorMessage(err)); markErr == nil {
			if updErr := e.jobs.UpdateJob(ctx, job); updErr != nil {
				logger.Errorf("Workflow: failed to persist failed promotion of job '%s': %v", jobID, updErr)
			}
		}
	}
	e.recordEvent(ctx, jobID, model.EventDataPromotionFailed, model.Metadata{
		"error":             err.Error(),
		"failure_timestamp": now(),
	})
}

func (e *Engine) runPromotion(ctx context.Context, job *model.Job) error {
	if err := job.MarkAsRunning(); err != nil {
		return exception.NewEtlError("workflow", exception.KindInvalidState, "job cannot be promoted", err)
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}
	e.recordEvent(ctx, job.ID, model.EventDataPromotionStarted, model.Metadata{"promotion_timestamp": now()})

	if err := job.MarkAsCompleted(job.Output); err != nil {
		return exception.NewEtlError("workflow", exception.KindInvalidState, "job cannot be completed", err)
	}
	if err := e.jobs.UpdateJob(ctx, job); err != nil {
		return err
	}
	e.recordEvent(ctx, job.ID, model.EventDataPromotionCompleted, model.Metadata{"completion_timestamp": now()})
	logger.Infof("Workflow: job '%s' promoted.", job.ID)
	return nil
}

// applySchemaChange only records intent; the job's data is not touched.
func (e *Engine) applySchemaChange(ctx context.Context, jobID string) {
	job, err := e.findJob(ctx, jobID)
	if err != nil {
		logger.Warnf("Workflow: schema change for job '%s' not recorded: %v", jobID, err)
		return
	}
	var changes interface{}
	if raw, err := model.MarshalDocument(job.Input.Document); err == nil {
		changes, _ = model.DecodeJSONValue(raw)
	}
	e.recordEvent(ctx, job.ID, model.EventSchemaChangeApplied, model.Metadata{
		"schema_changes":    changes,
		"applied_timestamp": now(),
	})
}

// ListPendingFor returns every pending approval when userID holds an approver role and an
// empty list otherwise.
func (e *Engine) ListPendingFor(ctx context.Context, userID string) ([]*model.WorkflowApproval, error) {
	user, err := e.identity.FindUser(ctx, userID)
	if err != nil {
		return nil, exception.NewEtlErrorf("workflow", exception.KindNotFound, "unknown user %s", userID, err)
	}
	if !e.cfg.IsApprover(user.Role) {
		return []*model.WorkflowApproval{}, nil
	}
	pending, err := e.approvals.FindApprovalsByState(ctx, model.ApprovalPending)
	if err != nil {
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to load approvals", err)
	}
	return pending, nil
}

// ForJob lists the approvals of a job.
func (e *Engine) ForJob(ctx context.Context, jobID string) ([]*model.WorkflowApproval, error) {
	approvals, err := e.approvals.FindApprovalsByJob(ctx, jobID)
	if err != nil {
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to load approvals", err)
	}
	return approvals, nil
}

// AutoRetryFailed retries every failed job whose retry counter is below the configured bound
// and that has not been retried yet. It returns the new jobs.
func (e *Engine) AutoRetryFailed(ctx context.Context) ([]*model.Job, error) {
	failed, err := e.jobs.FindJobsByStatus(ctx, model.JobStatusFailed)
	if err != nil {
		return nil, exception.NewEtlError("workflow", exception.KindInternal, "failed to load failed jobs", err)
	}

	limit := e.cfg.ETL.Retry.MaxAttempts
	retried := []*model.Job{}
	for _, job := range failed {
		if ctx.Err() != nil {
			return retried, ctx.Err()
		}
		if by, ok := job.Input.RetriedBy(); ok {
			logger.Debugf("Auto-retry: job '%s' already retried by '%s'.", job.ID, by)
			continue
		}
		count := job.Input.RetryCount()
		if count >= limit {
			logger.Debugf("Auto-retry: job '%s' reached the retry limit (%d).", job.ID, limit)
			continue
		}

		next, err := e.retrier.Retry(ctx, job.ID, RetryReasonAutomatic, model.Metadata{
			model.AttrRetryCount: count + 1,
			model.AttrAutoRetry:  true,
		})
		if err != nil {
			logger.Errorf("Auto-retry of job '%s' failed: %v", job.ID, err)
			continue
		}
		e.recordEvent(ctx, next.ID, model.EventAutoRetryInitiated, model.Metadata{
			"original_job_id": job.ID,
			"retry_count":     count + 1,
			"retry_reason":    RetryReasonAutomatic,
		})
		logger.Infof("Auto-retry: job '%s' retried as '%s' (attempt %d/%d).", job.ID, next.ID, count+1, limit)
		retried = append(retried, next)
	}
	return retried, nil
}
