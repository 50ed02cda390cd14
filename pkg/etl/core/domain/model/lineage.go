package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType is the closed set of lineage event kinds.
type EventType string

const (
	EventIngestion         EventType = "ingestion"
	EventTransformation    EventType = "transformation"
	EventOutput            EventType = "output"
	EventApprovalSubmitted EventType = "approval_submitted"
	EventApprovalApproved  EventType = "approval_approved"
	EventApprovalRejected  EventType = "approval_rejected"

	EventDataPromotionStarted   EventType = "data_promotion_started"
	EventDataPromotionCompleted EventType = "data_promotion_completed"
	EventDataPromotionFailed    EventType = "data_promotion_failed"
	EventSchemaChangeApplied    EventType = "schema_change_applied"
	EventAutoRetryInitiated     EventType = "auto_retry_initiated"
	EventAutoCorrection         EventType = "auto_correction"
	EventJobCancelled           EventType = "job_cancelled"
	EventCustom                 EventType = "custom"
)

var knownEventTypes = []EventType{
	EventIngestion, EventTransformation, EventOutput,
	EventApprovalSubmitted, EventApprovalApproved, EventApprovalRejected,
	EventDataPromotionStarted, EventDataPromotionCompleted, EventDataPromotionFailed,
	EventSchemaChangeApplied, EventAutoRetryInitiated, EventAutoCorrection,
	EventJobCancelled, EventCustom,
}

// EventTypes returns every known event type.
func EventTypes() []EventType {
	return append([]EventType(nil), knownEventTypes...)
}

// ErrUnknownEventType is returned when decoding an event type outside the closed set.
var ErrUnknownEventType = errors.New("unknown lineage event type")

// ParseEventType decodes s into a known EventType.
func ParseEventType(s string) (EventType, error) {
	for _, t := range knownEventTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
}

// UnmarshalJSON rejects unknown event types.
func (t *EventType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t EventType) Value() (driver.Value, error) {
	return string(t), nil
}

// Scan implements sql.Scanner and rejects unknown event types.
func (t *EventType) Scan(value interface{}) error {
	b, err := scanBytes(value, "EventType")
	if err != nil {
		return err
	}
	parsed, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// LineageEvent is an immutable timeline entry for a job.
type LineageEvent struct {
	ID                    string        `json:"id"`
	JobID                 string        `json:"job_id"`
	SourceID              *string       `json:"source_id,omitempty"`
	EventType             EventType     `json:"event_type"`
	Metadata              Metadata      `json:"metadata"`
	InputSchema           *TableProfile `json:"input_schema,omitempty"`
	OutputSchema          *TableProfile `json:"output_schema,omitempty"`
	TransformationDetails Metadata      `json:"transformation_details,omitempty"`
	Timestamp             time.Time     `json:"timestamp"`
	CreatedAt             time.Time     `json:"created_at"`
}

// NewLineageEvent creates an event stamped with the current time.
func NewLineageEvent(jobID string, eventType EventType, metadata Metadata) *LineageEvent {
	now := time.Now()
	if metadata == nil {
		metadata = Metadata{}
	}
	return &LineageEvent{
		ID:        NewID(),
		JobID:     jobID,
		EventType: eventType,
		Metadata:  metadata,
		Timestamp: now,
		CreatedAt: now,
	}
}

// Describe renders the one-line description shown in traces.
func (e *LineageEvent) Describe() string {
	switch e.EventType {
	case EventIngestion:
		ingestionType, _ := e.Metadata.GetString("ingestion_type")
		if ingestionType == "" {
			ingestionType = "unknown"
		}
		return fmt.Sprintf("Data ingested via %s", ingestionType)
	case EventTransformation:
		n, _ := e.TransformationDetails.GetInt("rules_applied")
		return fmt.Sprintf("Applied %d transformation rules", n)
	case EventOutput:
		dest, _ := e.Metadata.GetString("destination")
		if dest == "" {
			dest = "unknown"
		}
		return fmt.Sprintf("Data output to %s", dest)
	case EventApprovalSubmitted:
		approvalType, _ := e.Metadata.GetString("approval_type")
		return fmt.Sprintf("Submitted for %s approval", approvalType)
	case EventApprovalApproved:
		return "Approval granted"
	case EventApprovalRejected:
		return "Approval rejected"
	default:
		return fmt.Sprintf("Event: %s", e.EventType)
	}
}
