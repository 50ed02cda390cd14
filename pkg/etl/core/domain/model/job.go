package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Job is one unit of ingestion and transformation work. It is the aggregate root that
// lineage events, exceptions and approvals refer to.
type Job struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	SourceID       *string    `json:"source_id,omitempty"`
	Status         JobStatus  `json:"status"`
	Input          Payload    `json:"input_data"`
	Output         *JobOutput `json:"output_data,omitempty"`
	Rules          RuleSet    `json:"transformation_rules"`
	RulesAppliedAt *time.Time `json:"rules_applied_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedBy      string     `json:"created_by"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	// Version is incremented on every update and checked for optimistic locking.
	Version        int        `json:"version"`
}

// NewJob creates a pending job.
func NewJob(name, description string, input Payload, createdBy string) *Job {
	now := time.Now()
	return &Job{
		ID:          NewID(),
		Name:        name,
		Description: description,
		Status:      JobStatusPending,
		Input:       input,
		Rules:       RuleSet{},
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TransitionTo moves the job to newStatus if the lifecycle allows it.
// Fields other than Status and UpdatedAt must be set by the caller.
func (j *Job) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(j.Status, newStatus) {
		return fmt.Errorf("job (ID: %s): invalid state transition: %s -> %s", j.ID, j.Status, newStatus)
	}
	j.Status = newStatus
	j.UpdatedAt = time.Now()
	return nil
}

// MarkAsRunning transitions to running and stamps StartedAt.
func (j *Job) MarkAsRunning() error {
	if err := j.TransitionTo(JobStatusRunning); err != nil {
		return err
	}
	now := time.Now()
	j.StartedAt = &now
	return nil
}

// MarkAsCompleted transitions to completed and stamps CompletedAt.
func (j *Job) MarkAsCompleted(output *JobOutput) error {
	if err := j.TransitionTo(JobStatusCompleted); err != nil {
		return err
	}
	j.Output = output
	j.stampCompletion()
	return nil
}

// MarkAsFailed transitions to failed, records the message and drops any output.
func (j *Job) MarkAsFailed(message string) error {
	if err := j.TransitionTo(JobStatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = message
	j.Output = nil
	j.stampCompletion()
	return nil
}

// MarkAsCancelled transitions a pending job to cancelled.
func (j *Job) MarkAsCancelled() error {
	return j.TransitionTo(JobStatusCancelled)
}

func (j *Job) stampCompletion() {
	now := time.Now()
	if j.StartedAt != nil && now.Before(*j.StartedAt) {
		now = *j.StartedAt
	}
	j.CompletedAt = &now
}

// Clone returns a copy that shares no mutable maps with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Input = j.Input.Clone()
	c.Rules = append(RuleSet(nil), j.Rules...)
	c.Output = j.Output.Clone()
	return &c
}

// ValidationResult is the post-transformation data quality verdict.
type ValidationResult struct {
	TotalRows     int               `json:"total_rows"`
	TotalColumns  int               `json:"total_columns"`
	NullCounts    map[string]int    `json:"null_counts"`
	DataTypes     map[string]string `json:"data_types"`
	DuplicateRows int               `json:"duplicate_rows"`
	Issues        []string          `json:"issues"`
	Passed        bool              `json:"validation_passed"`
}

// TransformationSummary lists the rules a run applied.
type TransformationSummary struct {
	RulesApplied int        `json:"rules_applied"`
	RulesList    []RuleType `json:"rules_list"`
}

// JobOutput is the result of a successful transformation run.
type JobOutput struct {
	Data             Document              `json:"-"`
	Validation       ValidationResult      `json:"validation_results"`
	RowCount         int                   `json:"row_count"`
	OriginalRowCount int                   `json:"original_row_count"`
	Summary          TransformationSummary `json:"transformation_summary"`
	SchemaDiff       *SchemaDiff           `json:"schema_diff,omitempty"`
}

// Clone deep-copies the output data, the validation maps and the schema diff.
func (o *JobOutput) Clone() *JobOutput {
	if o == nil {
		return nil
	}
	c := *o
	c.Data = CloneDocument(o.Data)
	c.Validation.NullCounts = maps.Clone(o.Validation.NullCounts)
	c.Validation.DataTypes = maps.Clone(o.Validation.DataTypes)
	c.Validation.Issues = slices.Clone(o.Validation.Issues)
	c.Summary.RulesList = slices.Clone(o.Summary.RulesList)
	if o.SchemaDiff != nil {
		diff := SchemaDiff{
			ColumnsAdded:    slices.Clone(o.SchemaDiff.ColumnsAdded),
			ColumnsRemoved:  slices.Clone(o.SchemaDiff.ColumnsRemoved),
			ColumnsModified: slices.Clone(o.SchemaDiff.ColumnsModified),
			RowCountChange:  o.SchemaDiff.RowCountChange,
		}
		c.SchemaDiff = &diff
	}
	return &c
}

// Table returns the output data when it is tabular.
func (o *JobOutput) Table() (*Table, bool) {
	if o == nil {
		return nil, false
	}
	td, ok := o.Data.(TabularDocument)
	if !ok || td.Table == nil {
		return nil, false
	}
	return td.Table, true
}

type jobOutputAlias JobOutput

type jobOutputJSON struct {
	jobOutputAlias
	Data json.RawMessage `json:"processed_data"`
}

// MarshalJSON implements json.Marshaler.
func (o JobOutput) MarshalJSON() ([]byte, error) {
	data, err := MarshalDocument(o.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jobOutputJSON{jobOutputAlias: jobOutputAlias(o), Data: data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *JobOutput) UnmarshalJSON(b []byte) error {
	var raw jobOutputJSON
	if err := decodeJSON(b, &raw); err != nil {
		return err
	}
	doc, err := UnmarshalDocument(raw.Data)
	if err != nil {
		return err
	}
	*o = JobOutput(raw.jobOutputAlias)
	o.Data = doc
	return nil
}
