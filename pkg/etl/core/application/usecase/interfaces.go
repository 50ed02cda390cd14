package usecase

import (
	"context"

	"github.com/tigerroll/surfin-etl/pkg/etl/component/writer"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// IngestOptions are shared by every ingestion channel.
type IngestOptions struct {
	CreatedBy string
	// Rules is the rule set stored on the new job and applied when it runs.
	Rules model.RuleSet
	// Upstream names the export destination the data was read from. It is recorded as the
	// "source" of the ingestion event so lineage can link the producing job.
	Upstream string
	// Metadata is recorded with the ingestion event.
	Metadata model.Metadata
}

// SwiftInput is a SWIFT message as submitted.
type SwiftInput struct {
	MessageType string
	Content     string
	Sender      string
	Receiver    string
}

// FileInput is an uploaded batch file.
type FileInput struct {
	Filename    string
	Data        []byte
	ContentType string
	// SourceID optionally links the upload to a registered data source.
	SourceID *string
}

// IngestResult is a created job plus the schema detected for its input.
type IngestResult struct {
	Job    *model.Job            `json:"job"`
	Schema *model.DetectedSchema `json:"schema,omitempty"`
}

// JobIngestor creates pending jobs from ingested data.
type JobIngestor interface {
	// IngestAPI ingests a JSON payload sent for a registered data source.
	IngestAPI(ctx context.Context, sourceID string, payload []byte, opts IngestOptions) (*IngestResult, error)
	// IngestSwift ingests one SWIFT message.
	IngestSwift(ctx context.Context, in SwiftInput, opts IngestOptions) (*IngestResult, error)
	// IngestFile stores and decodes an uploaded CSV, JSON or XLSX file.
	IngestFile(ctx context.Context, in FileInput, opts IngestOptions) (*IngestResult, error)
	// RegisterDataSource creates an active data source.
	RegisterDataSource(ctx context.Context, name, description string, sourceType model.SourceType, connection model.Metadata, createdBy string) (*model.DataSource, error)
}

// JobLauncher runs the stored rule set of pending jobs.
type JobLauncher interface {
	// Run executes the job in the caller's goroutine.
	Run(ctx context.Context, jobID string) (*model.Job, error)
	// RunAsync checks that the job can run and executes it in the background.
	RunAsync(ctx context.Context, jobID string) error
	// RunPending executes every pending job with bounded concurrency.
	RunPending(ctx context.Context) ([]*model.Job, error)
	// Wait blocks until every background run has returned.
	Wait()
}

// JobOperator acts on existing jobs.
type JobOperator interface {
	// Retry clones a job into a new pending job. reason defaults to "manual_retry".
	Retry(ctx context.Context, jobID, reason string, attributes model.Metadata) (*model.Job, error)
	// Cancel moves a pending job to cancelled.
	Cancel(ctx context.Context, jobID string) (*model.Job, error)
	// Export writes the output of a completed job to Parquet under destination.
	Export(ctx context.Context, jobID, destination string) (*writer.Export, error)
}

// JobExplorer queries jobs and their detected schemas.
type JobExplorer interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	FindJobsByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error)
	FindJobsBySource(ctx context.Context, sourceID string) ([]*model.Job, error)
	SchemasForJob(ctx context.Context, jobID string) ([]*model.DetectedSchema, error)
	ListDataSources(ctx context.Context) ([]*model.DataSource, error)
}
