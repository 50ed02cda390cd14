package sql

import (
	"encoding/json"
	"fmt"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// --- JSON column helpers ---

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeOptionalJSON[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := encodeJSON(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func decodeOptionalJSON[T any](s *string) (*T, error) {
	if s == nil || *s == "" || *s == "null" {
		return nil, nil
	}
	out := new(T)
	if err := json.Unmarshal([]byte(*s), out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMetadata(s string) (model.Metadata, error) {
	var m model.Metadata
	if err := m.Scan(s); err != nil {
		return nil, err
	}
	return m, nil
}

func metadataString(m model.Metadata) (string, error) {
	v, err := m.Value()
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// --- Job ---

func fromDomainJob(j *model.Job) (*JobEntity, error) {
	input, err := encodeJSON(j.Input)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	output, err := encodeOptionalJSON(j.Output)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	rules, err := j.Rules.Value()
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return &JobEntity{
		ID:             j.ID,
		Name:           j.Name,
		Description:    j.Description,
		SourceID:       j.SourceID,
		Status:         string(j.Status),
		InputData:      input,
		OutputData:     output,
		Rules:          rules.(string),
		RulesAppliedAt: j.RulesAppliedAt,
		ErrorMessage:   j.ErrorMessage,
		CreatedBy:      j.CreatedBy,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		Version:        j.Version,
	}, nil
}

func toDomainJob(e *JobEntity) (*model.Job, error) {
	status, err := model.ParseJobStatus(e.Status)
	if err != nil {
		return nil, err
	}
	var input model.Payload
	if e.InputData != "" {
		if err := json.Unmarshal([]byte(e.InputData), &input); err != nil {
			return nil, fmt.Errorf("decode input of job %s: %w", e.ID, err)
		}
	}
	output, err := decodeOptionalJSON[model.JobOutput](e.OutputData)
	if err != nil {
		return nil, fmt.Errorf("decode output of job %s: %w", e.ID, err)
	}
	var rules model.RuleSet
	if err := rules.Scan(e.Rules); err != nil {
		return nil, err
	}
	return &model.Job{
		ID:             e.ID,
		Name:           e.Name,
		Description:    e.Description,
		SourceID:       e.SourceID,
		Status:         status,
		Input:          input,
		Output:         output,
		Rules:          rules,
		RulesAppliedAt: e.RulesAppliedAt,
		ErrorMessage:   e.ErrorMessage,
		CreatedBy:      e.CreatedBy,
		StartedAt:      e.StartedAt,
		CompletedAt:    e.CompletedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
		Version:        e.Version,
	}, nil
}

// --- DetectedSchema ---

func fromDomainSchema(s *model.DetectedSchema) (*DetectedSchemaEntity, error) {
	fields, err := s.Fields.Value()
	if err != nil {
		return nil, err
	}
	root, err := encodeOptionalJSON(s.Root)
	if err != nil {
		return nil, err
	}
	sample, err := encodeJSON(s.Sample)
	if err != nil {
		return nil, err
	}
	return &DetectedSchemaEntity{
		ID:         s.ID,
		SourceID:   s.SourceID,
		JobID:      s.JobID,
		SourceKind: string(s.SourceKind),
		RootType:   s.RootType,
		Fields:     fields.(string),
		Root:       root,
		RowCount:   s.RowCount,
		Confidence: s.Confidence,
		Method:     s.Method,
		Sample:     sample,
		Approved:   s.Approved,
		ApprovedBy: s.ApprovedBy,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}, nil
}

func toDomainSchema(e *DetectedSchemaEntity) (*model.DetectedSchema, error) {
	var fields model.FieldList
	if err := fields.Scan(e.Fields); err != nil {
		return nil, err
	}
	root, err := decodeOptionalJSON[model.FieldSchema](e.Root)
	if err != nil {
		return nil, err
	}
	var sample []interface{}
	if e.Sample != "" {
		v, err := model.DecodeJSONValue([]byte(e.Sample))
		if err != nil {
			return nil, err
		}
		sample, _ = v.([]interface{})
	}
	return &model.DetectedSchema{
		ID:         e.ID,
		SourceID:   e.SourceID,
		JobID:      e.JobID,
		SourceKind: model.SourceKind(e.SourceKind),
		RootType:   e.RootType,
		Fields:     fields,
		Root:       root,
		RowCount:   e.RowCount,
		Confidence: e.Confidence,
		Method:     e.Method,
		Sample:     sample,
		Approved:   e.Approved,
		ApprovedBy: e.ApprovedBy,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}, nil
}

// --- LineageEvent ---

func fromDomainEvent(ev *model.LineageEvent) (*LineageEventEntity, error) {
	meta, err := metadataString(ev.Metadata)
	if err != nil {
		return nil, err
	}
	details, err := metadataString(ev.TransformationDetails)
	if err != nil {
		return nil, err
	}
	in, err := encodeOptionalJSON(ev.InputSchema)
	if err != nil {
		return nil, err
	}
	out, err := encodeOptionalJSON(ev.OutputSchema)
	if err != nil {
		return nil, err
	}
	return &LineageEventEntity{
		ID:                    ev.ID,
		JobID:                 ev.JobID,
		SourceID:              ev.SourceID,
		EventType:             string(ev.EventType),
		Metadata:              meta,
		InputSchema:           in,
		OutputSchema:          out,
		TransformationDetails: details,
		OccurredAt:            ev.Timestamp,
		CreatedAt:             ev.CreatedAt,
	}, nil
}

func toDomainEvent(e *LineageEventEntity) (*model.LineageEvent, error) {
	eventType, err := model.ParseEventType(e.EventType)
	if err != nil {
		return nil, err
	}
	meta, err := scanMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	details, err := scanMetadata(e.TransformationDetails)
	if err != nil {
		return nil, err
	}
	in, err := decodeOptionalJSON[model.TableProfile](e.InputSchema)
	if err != nil {
		return nil, err
	}
	out, err := decodeOptionalJSON[model.TableProfile](e.OutputSchema)
	if err != nil {
		return nil, err
	}
	return &model.LineageEvent{
		ID:                    e.ID,
		JobID:                 e.JobID,
		SourceID:              e.SourceID,
		EventType:             eventType,
		Metadata:              meta,
		InputSchema:           in,
		OutputSchema:          out,
		TransformationDetails: details,
		Timestamp:             e.OccurredAt,
		CreatedAt:             e.CreatedAt,
	}, nil
}

// --- DataException ---

func fromDomainException(x *model.DataException) (*DataExceptionEntity, error) {
	meta, err := metadataString(x.Metadata)
	if err != nil {
		return nil, err
	}
	return &DataExceptionEntity{
		ID:              x.ID,
		JobID:           x.JobID,
		ExceptionType:   x.Type,
		Message:         x.Message,
		Severity:        string(x.Severity),
		Metadata:        meta,
		StackTrace:      x.StackTrace,
		Resolved:        x.Resolved,
		ResolvedBy:      x.ResolvedBy,
		ResolutionNotes: x.ResolutionNotes,
		ResolvedAt:      x.ResolvedAt,
		OccurredAt:      x.Timestamp,
		CreatedAt:       x.CreatedAt,
	}, nil
}

func toDomainException(e *DataExceptionEntity) (*model.DataException, error) {
	severity, err := model.ParseSeverity(e.Severity)
	if err != nil {
		return nil, err
	}
	meta, err := scanMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	return &model.DataException{
		ID:              e.ID,
		JobID:           e.JobID,
		Type:            e.ExceptionType,
		Message:         e.Message,
		Severity:        severity,
		Metadata:        meta,
		StackTrace:      e.StackTrace,
		Resolved:        e.Resolved,
		ResolvedBy:      e.ResolvedBy,
		ResolutionNotes: e.ResolutionNotes,
		ResolvedAt:      e.ResolvedAt,
		Timestamp:       e.OccurredAt,
		CreatedAt:       e.CreatedAt,
	}, nil
}

// --- WorkflowApproval ---

func fromDomainApproval(a *model.WorkflowApproval) *WorkflowApprovalEntity {
	return &WorkflowApprovalEntity{
		ID:           a.ID,
		JobID:        a.JobID,
		ApprovalType: string(a.Type),
		State:        string(a.State),
		SubmittedBy:  a.SubmittedBy,
		ApprovedBy:   a.ApprovedBy,
		Comments:     a.Comments,
		SubmittedAt:  a.SubmittedAt,
		ApprovedAt:   a.ApprovedAt,
		UpdatedAt:    a.UpdatedAt,
		Version:      a.Version,
	}
}

func toDomainApproval(e *WorkflowApprovalEntity) (*model.WorkflowApproval, error) {
	approvalType, err := model.ParseApprovalType(e.ApprovalType)
	if err != nil {
		return nil, err
	}
	return &model.WorkflowApproval{
		ID:          e.ID,
		JobID:       e.JobID,
		Type:        approvalType,
		State:       model.ApprovalState(e.State),
		SubmittedBy: e.SubmittedBy,
		ApprovedBy:  e.ApprovedBy,
		Comments:    e.Comments,
		SubmittedAt: e.SubmittedAt,
		ApprovedAt:  e.ApprovedAt,
		UpdatedAt:   e.UpdatedAt,
		Version:     e.Version,
	}, nil
}

// --- DataSource ---

func fromDomainDataSource(d *model.DataSource) (*DataSourceEntity, error) {
	cfg, err := metadataString(d.ConnectionConfig)
	if err != nil {
		return nil, err
	}
	return &DataSourceEntity{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		SourceType:       string(d.Type),
		ConnectionConfig: cfg,
		Active:           d.Active,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

func toDomainDataSource(e *DataSourceEntity) (*model.DataSource, error) {
	cfg, err := scanMetadata(e.ConnectionConfig)
	if err != nil {
		return nil, err
	}
	return &model.DataSource{
		ID:               e.ID,
		Name:             e.Name,
		Description:      e.Description,
		Type:             model.SourceType(e.SourceType),
		ConnectionConfig: cfg,
		Active:           e.Active,
		CreatedBy:        e.CreatedBy,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}, nil
}
