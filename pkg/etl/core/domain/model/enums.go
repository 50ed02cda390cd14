package model

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a new random identifier.
func NewID() string {
	return uuid.New().String()
}

// JobStatus represents the lifecycle state of a ProcessingJob.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished reports whether s is terminal.
func (s JobStatus) IsFinished() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseJobStatus validates s against the known statuses.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status: %q", s)
}

// isValidJobTransition encodes the forward-only job lifecycle.
func isValidJobTransition(current, next JobStatus) bool {
	switch current {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusCancelled || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// ApprovalState is the state of a WorkflowApproval.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
	// ApprovalCancelled is only set by external cancellation, never by a decision.
	ApprovalCancelled ApprovalState = "cancelled"
)

func (s ApprovalState) String() string { return string(s) }

// ApprovalType selects what happens once an approval is granted.
type ApprovalType string

const (
	ApprovalDataPromotion ApprovalType = "data_promotion"
	ApprovalSchemaChange  ApprovalType = "schema_change"
	ApprovalJobExecution  ApprovalType = "job_execution"
)

// ParseApprovalType validates s against the known approval types.
func ParseApprovalType(s string) (ApprovalType, error) {
	switch t := ApprovalType(s); t {
	case ApprovalDataPromotion, ApprovalSchemaChange, ApprovalJobExecution:
		return t, nil
	}
	return "", fmt.Errorf("unknown approval type: %q", s)
}

// Decision is the outcome of a reviewer's decision on an approval.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Severity ranks a DataException.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// ParseSeverity validates s against the known severities.
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range Severities {
		if string(sev) == s {
			return sev, nil
		}
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// RequiresAlert reports whether exceptions of this severity notify administrators.
func (s Severity) RequiresAlert() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDataEngineer Role = "data_engineer"
	RoleAnalyst      Role = "analyst"
	RoleViewer       Role = "viewer"
)

// SourceType is the ingestion channel of a DataSource.
type SourceType string

const (
	SourceTypeAPI   SourceType = "api"
	SourceTypeSwift SourceType = "swift"
	SourceTypeBatch SourceType = "batch"
)

// SourceKind selects the schema detection strategy.
type SourceKind string

const (
	SourceKindTabular SourceKind = "tabular"
	SourceKindJSON    SourceKind = "json"
	SourceKindSwift   SourceKind = "swift"
)
