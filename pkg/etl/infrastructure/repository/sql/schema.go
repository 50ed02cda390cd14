package sql

import "time"

// JSON-valued columns are stored as text. The mapper encodes and decodes them.

// JobEntity is the persistence model of a processing job.
type JobEntity struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Description    string
	SourceID       *string
	Status         string
	InputData      string `gorm:"type:text"`
	OutputData     *string `gorm:"type:text"`
	Rules          string  `gorm:"type:text"`
	RulesAppliedAt *time.Time
	ErrorMessage   string
	CreatedBy      string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int
}

func (JobEntity) TableName() string {
	return "etl_processing_jobs"
}

// DetectedSchemaEntity is the persistence model of a detected schema.
type DetectedSchemaEntity struct {
	ID         string `gorm:"primaryKey"`
	SourceID   *string
	JobID      *string
	SourceKind string
	RootType   string
	Fields     string  `gorm:"type:text"`
	Root       *string `gorm:"type:text"`
	RowCount   int
	Confidence float64
	Method     string
	Sample     string `gorm:"type:text"`
	Approved   bool
	ApprovedBy *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (DetectedSchemaEntity) TableName() string {
	return "etl_detected_schemas"
}

// LineageEventEntity is the persistence model of a lineage event.
type LineageEventEntity struct {
	ID                    string `gorm:"primaryKey"`
	JobID                 string
	SourceID              *string
	EventType             string
	Metadata              string  `gorm:"type:text"`
	InputSchema           *string `gorm:"type:text"`
	OutputSchema          *string `gorm:"type:text"`
	TransformationDetails string  `gorm:"type:text"`
	OccurredAt            time.Time
	CreatedAt             time.Time
}

func (LineageEventEntity) TableName() string {
	return "etl_lineage_events"
}

// DataExceptionEntity is the persistence model of a data exception.
type DataExceptionEntity struct {
	ID              string `gorm:"primaryKey"`
	JobID           string
	ExceptionType   string
	Message         string `gorm:"type:text"`
	Severity        string
	Metadata        string `gorm:"type:text"`
	StackTrace      string `gorm:"type:text"`
	Resolved        bool
	ResolvedBy      *string
	ResolutionNotes string `gorm:"type:text"`
	ResolvedAt      *time.Time
	OccurredAt      time.Time
	CreatedAt       time.Time
}

func (DataExceptionEntity) TableName() string {
	return "etl_data_exceptions"
}

// WorkflowApprovalEntity is the persistence model of an approval request.
type WorkflowApprovalEntity struct {
	ID           string `gorm:"primaryKey"`
	JobID        string
	ApprovalType string
	State        string
	SubmittedBy  string
	ApprovedBy   *string
	Comments     string `gorm:"type:text"`
	SubmittedAt  time.Time
	ApprovedAt   *time.Time
	UpdatedAt    time.Time
	Version      int
}

func (WorkflowApprovalEntity) TableName() string {
	return "etl_workflow_approvals"
}

// DataSourceEntity is the persistence model of a data source.
type DataSourceEntity struct {
	ID               string `gorm:"primaryKey"`
	Name             string
	Description      string
	SourceType       string
	ConnectionConfig string `gorm:"type:text"`
	Active           bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DataSourceEntity) TableName() string {
	return "etl_data_sources"
}
