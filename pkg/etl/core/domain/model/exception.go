package model

import "time"

// Well-known exception type tags.
const (
	ExceptionUnknownRule           = "unknown_transformation_rule"
	ExceptionTransformationError   = "transformation_error"
	ExceptionDataTypeMismatch      = "data_type_mismatch"
	ExceptionMissingRequiredField  = "missing_required_field"
	ExceptionDuplicateRecords      = "duplicate_records"
	ExceptionInvalidDateFormat     = "invalid_date_format"
	ExceptionEncodingError         = "encoding_error"
	ExceptionAutoCorrectionApplied = "auto_correction_applied"
	ExceptionAutoCorrectionFailed  = "auto_correction_failed"
	ExceptionValidationFailed      = "validation_failed"
	ExceptionFileParseError        = "file_parse_error"
)

// MetaSuggestions is the metadata key holding auto-correction suggestions.
const MetaSuggestions = "auto_correction_suggestions"

// DataException is a job-scoped fault record.
type DataException struct {
	ID              string     `json:"id"`
	JobID           string     `json:"job_id"`
	Type            string     `json:"exception_type"`
	Message         string     `json:"message"`
	Severity        Severity   `json:"severity"`
	Metadata        Metadata   `json:"metadata"`
	StackTrace      string     `json:"stack_trace,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NewDataException creates an unresolved exception.
func NewDataException(jobID, exceptionType, message string, severity Severity, metadata Metadata) *DataException {
	now := time.Now()
	if metadata == nil {
		metadata = Metadata{}
	}
	return &DataException{
		ID:        NewID(),
		JobID:     jobID,
		Type:      exceptionType,
		Message:   message,
		Severity:  severity,
		Metadata:  metadata,
		Timestamp: now,
		CreatedAt: now,
	}
}

// Clone returns a copy with its own metadata map.
func (e *DataException) Clone() *DataException {
	c := *e
	c.Metadata = e.Metadata.Clone()
	return &c
}

// Suggestion is a candidate corrective action for an exception.
type Suggestion struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Action      string  `json:"action"`
}

// ExceptionStatistics summarizes exceptions, optionally for one job.
type ExceptionStatistics struct {
	TotalExceptions      int              `json:"total_exceptions"`
	ResolvedExceptions   int              `json:"resolved_exceptions"`
	UnresolvedExceptions int              `json:"unresolved_exceptions"`
	ResolutionRate       float64          `json:"resolution_rate"`
	SeverityBreakdown    map[Severity]int `json:"severity_breakdown"`
	ExceptionTypes       map[string]int   `json:"exception_types"`
}
