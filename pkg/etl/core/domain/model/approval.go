package model

import (
	"fmt"
	"time"
)

// WorkflowApproval gates the effect of a job behind a human decision.
type WorkflowApproval struct {
	ID          string        `json:"id"`
	JobID       string        `json:"job_id"`
	Type        ApprovalType  `json:"approval_type"`
	State       ApprovalState `json:"status"`
	SubmittedBy string        `json:"submitted_by"`
	ApprovedBy  *string       `json:"approved_by,omitempty"`
	Comments    string        `json:"comments"`
	SubmittedAt time.Time     `json:"submitted_at"`
	ApprovedAt  *time.Time    `json:"approved_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Version     int           `json:"version"`
}

// NewWorkflowApproval creates a pending approval.
func NewWorkflowApproval(jobID string, approvalType ApprovalType, submittedBy, comments string) *WorkflowApproval {
	now := time.Now()
	return &WorkflowApproval{
		ID:          NewID(),
		JobID:       jobID,
		Type:        approvalType,
		State:       ApprovalPending,
		SubmittedBy: submittedBy,
		Comments:    comments,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
}

// AppendComment adds a labelled comment below any existing text. Existing text is never replaced.
func (a *WorkflowApproval) AppendComment(label, text string) {
	entry := fmt.Sprintf("%s: %s", label, text)
	if a.Comments != "" {
		a.Comments = a.Comments + "\n\n" + entry
		return
	}
	a.Comments = entry
}

// Decide moves a pending approval to approved or rejected. Decided approvals are final.
func (a *WorkflowApproval) Decide(decision Decision, approverID string) error {
	if a.State != ApprovalPending {
		return fmt.Errorf("approval (ID: %s) already %s", a.ID, a.State)
	}
	now := time.Now()
	switch decision {
	case DecisionApprove:
		a.State = ApprovalApproved
	case DecisionReject:
		a.State = ApprovalRejected
	default:
		return fmt.Errorf("unknown decision: %q", decision)
	}
	a.ApprovedBy = &approverID
	a.ApprovedAt = &now
	a.UpdatedAt = now
	return nil
}
