// Package usecase implements the job orchestrator: ingestion, execution and the operations
// acting on existing jobs.
package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage"
	"github.com/tigerroll/surfin-etl/pkg/etl/component/reader"
	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
	"github.com/tigerroll/surfin-etl/pkg/etl/core/service/lineage"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/retry"
	"github.com/tigerroll/surfin-etl/pkg/etl/engine/schema"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// DefaultJobIngestor implements JobIngestor.
type DefaultJobIngestor struct {
	cfg      *config.Config
	jobs     repository.JobRepository
	sources  repository.DataSourceRepository
	lineage  *lineage.Tracker
	detector *schema.Detector
	readers  *reader.Registry
	storage  storage.StorageConnection
	reporter ports.ExceptionReporter
	recorder metrics.MetricRecorder
	policy   retry.RetryPolicy
}

// DefaultJobIngestorParams are the dependencies of NewDefaultJobIngestor.
type DefaultJobIngestorParams struct {
	fx.In
	Config   *config.Config
	Jobs     repository.JobRepository
	Sources  repository.DataSourceRepository
	Lineage  *lineage.Tracker
	Detector *schema.Detector
	Readers  *reader.Registry
	Storage  storage.StorageConnection
	Reporter ports.ExceptionReporter
	Recorder metrics.MetricRecorder
}

// NewDefaultJobIngestor creates a DefaultJobIngestor. Uploads are retried with the configured
// retry policy.
func NewDefaultJobIngestor(p DefaultJobIngestorParams) *DefaultJobIngestor {
	return &DefaultJobIngestor{
		cfg:      p.Config,
		jobs:     p.Jobs,
		sources:  p.Sources,
		lineage:  p.Lineage,
		detector: p.Detector,
		readers:  p.Readers,
		storage:  p.Storage,
		reporter: p.Reporter,
		recorder: p.Recorder,
		policy:   retry.NewPolicy(p.Config.ETL.Retry),
	}
}

var _ JobIngestor = (*DefaultJobIngestor)(nil)

func (s *DefaultJobIngestor) findSource(ctx context.Context, sourceID string) (*model.DataSource, error) {
	src, err := s.sources.FindDataSourceByID(ctx, sourceID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, exception.NewEtlErrorf("ingestion", exception.KindNotFound, "data source %s not found", sourceID, err)
		}
		return nil, exception.NewEtlError("ingestion", exception.KindInternal, "failed to load data source", err)
	}
	return src, nil
}

// save persists a new job and its ingestion event.
func (s *DefaultJobIngestor) save(ctx context.Context, job *model.Job, opts IngestOptions, md model.Metadata) error {
	if opts.Rules != nil {
		job.Rules = opts.Rules
	}
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return exception.NewEtlError("ingestion", exception.KindInternal, "failed to save job", err)
	}
	if opts.Upstream != "" {
		md["source"] = opts.Upstream
	}
	if len(opts.Metadata) > 0 {
		md["metadata"] = map[string]interface{}(opts.Metadata.Clone())
	}
	if _, err := s.lineage.RecordIngestion(ctx, job.ID, job.SourceID, md); err != nil {
		logger.Warnf("Ingestion: %v", err)
	}
	logger.Infof("Job '%s' (%s) created by '%s' with %d rule(s).", job.ID, job.Name, job.CreatedBy, len(job.Rules))
	return nil
}

// detect never fails the ingestion: the job already exists when it runs.
func (s *DefaultJobIngestor) detect(ctx context.Context, job *model.Job, doc model.Document, kind model.SourceKind) *model.DetectedSchema {
	jobID := job.ID
	detected, err := s.detector.Detect(ctx, doc, kind, schema.Ref{SourceID: job.SourceID, JobID: &jobID})
	if err != nil {
		logger.Warnf("Ingestion: schema detection for job '%s' failed: %v", job.ID, err)
		return nil
	}
	return detected
}

func rowsOf(doc model.Document) int {
	switch d := doc.(type) {
	case model.TabularDocument:
		return d.Table.Len()
	case model.HierarchicalDocument:
		if records, err := d.Records(); err == nil {
			return len(records)
		}
		if arr, ok := d.Value.([]interface{}); ok {
			return len(arr)
		}
		if d.Value != nil {
			return 1
		}
	}
	return 0
}

// IngestAPI creates a job holding the decoded payload of a registered data source.
func (s *DefaultJobIngestor) IngestAPI(ctx context.Context, sourceID string, payload []byte, opts IngestOptions) (*IngestResult, error) {
	src, err := s.findSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	value, err := model.DecodeJSONValue(payload)
	if err != nil {
		return nil, exception.NewEtlError("ingestion", exception.KindUnsupportedInput, "payload is not valid JSON", err)
	}
	doc := model.HierarchicalDocument{Value: value}

	job := model.NewJob(fmt.Sprintf("API Ingestion - %s", src.Name), "Data ingestion via API endpoint", model.Payload{Document: doc}, opts.CreatedBy)
	job.SourceID = &src.ID
	if err := s.save(ctx, job, opts, model.Metadata{
		"ingestion_type": string(model.SourceTypeAPI),
		"data_size":      len(payload),
	}); err != nil {
		return nil, err
	}
	s.recorder.RecordIngestion(ctx, model.SourceTypeAPI, rowsOf(doc))
	return &IngestResult{Job: job, Schema: s.detect(ctx, job, doc, model.SourceKindJSON)}, nil
}

// IngestSwift parses the message fields and keeps them together with the routing parties.
func (s *DefaultJobIngestor) IngestSwift(ctx context.Context, in SwiftInput, opts IngestOptions) (*IngestResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, exception.NewEtlError("ingestion", exception.KindValidation, "swift message content is empty", nil)
	}
	msg := model.ParseSwiftMessage(in.Content, in.MessageType)
	value := msg.ToValue()
	value["sender"] = in.Sender
	value["receiver"] = in.Receiver

	job := model.NewJob(fmt.Sprintf("Swift Message - %s", in.MessageType),
		fmt.Sprintf("Swift message processing from %s to %s", in.Sender, in.Receiver),
		model.Payload{Document: model.HierarchicalDocument{Value: value}}, opts.CreatedBy)
	if err := s.save(ctx, job, opts, model.Metadata{
		"ingestion_type": string(model.SourceTypeSwift),
		"message_type":   in.MessageType,
		"sender":         in.Sender,
		"receiver":       in.Receiver,
	}); err != nil {
		return nil, err
	}
	s.recorder.RecordIngestion(ctx, model.SourceTypeSwift, len(msg.Fields))
	return &IngestResult{Job: job, Schema: s.detect(ctx, job, model.HierarchicalDocument{Value: msg.ToValue()}, model.SourceKindSwift)}, nil
}

func (s *DefaultJobIngestor) extensionAllowed(filename string) bool {
	ext := strings.ToLower(path.Ext(filename))
	for _, allowed := range s.cfg.ETL.Ingestion.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// IngestFile stores the upload, then decodes it. A file that cannot be decoded still becomes
// a job with a raw input document, and the failure is reported against that job.
func (s *DefaultJobIngestor) IngestFile(ctx context.Context, in FileInput, opts IngestOptions) (*IngestResult, error) {
	filename := path.Base(strings.ReplaceAll(in.Filename, "\\", "/"))
	if limit := s.cfg.ETL.Ingestion.MaxFileSizeBytes(); int64(len(in.Data)) > limit {
		return nil, exception.NewEtlErrorf("ingestion", exception.KindValidation, "file size exceeds maximum allowed size of %d bytes", limit)
	}
	format, ok := reader.FormatFromFilename(filename)
	if !ok || !s.extensionAllowed(filename) || !s.readers.Supports(format) {
		return nil, exception.NewEtlErrorf("ingestion", exception.KindUnsupportedInput, "unsupported file type: %s", path.Ext(filename))
	}
	if in.SourceID != nil {
		if _, err := s.findSource(ctx, *in.SourceID); err != nil {
			return nil, err
		}
	}

	doc, decodeErr := s.readers.Decode(ctx, format, in.Data)
	if decodeErr != nil {
		doc = model.RawDocument{Format: format, Bytes: in.Data}
	}
	job := model.NewJob(fmt.Sprintf("Batch Upload - %s", filename), fmt.Sprintf("Batch file processing for %s", filename),
		model.Payload{Document: doc}, opts.CreatedBy)
	job.SourceID = in.SourceID

	objectName := path.Join(s.cfg.ETL.Ingestion.UploadDir, job.ID, filename)
	err := retry.Do(ctx, s.policy, "upload "+objectName, func(ctx context.Context) error {
		return s.storage.Upload(ctx, "", objectName, bytes.NewReader(in.Data), in.ContentType)
	})
	if err != nil {
		return nil, exception.NewEtlErrorf("ingestion", exception.KindInternal, "failed to store upload %s", filename, err)
	}

	if err := s.save(ctx, job, opts, model.Metadata{
		"ingestion_type": string(model.SourceTypeBatch),
		"filename":       filename,
		"file_size":      len(in.Data),
		"content_type":   in.ContentType,
		"format":         string(format),
		"object_name":    objectName,
	}); err != nil {
		return nil, err
	}
	s.recorder.RecordIngestion(ctx, model.SourceTypeBatch, rowsOf(doc))

	if decodeErr != nil {
		excType := model.ExceptionFileParseError
		if errors.Is(decodeErr, reader.ErrInvalidEncoding) {
			excType = model.ExceptionEncodingError
		}
		if _, err := s.reporter.Report(ctx, job.ID, excType, exception.ExtractErrorMessage(decodeErr), model.SeverityMedium,
			model.Metadata{"filename": filename, "format": string(format), "error": decodeErr.Error()}); err != nil {
			logger.Warnf("Ingestion: failed to report decode failure of job '%s': %v", job.ID, err)
		}
	}

	kind := model.SourceKindTabular
	if format == model.RawJSON {
		kind = model.SourceKindJSON
	}
	return &IngestResult{Job: job, Schema: s.detect(ctx, job, doc, kind)}, nil
}

// RegisterDataSource creates an active data source.
func (s *DefaultJobIngestor) RegisterDataSource(ctx context.Context, name, description string, sourceType model.SourceType, connection model.Metadata, createdBy string) (*model.DataSource, error) {
	if strings.TrimSpace(name) == "" {
		return nil, exception.NewEtlError("ingestion", exception.KindValidation, "data source name is required", nil)
	}
	switch sourceType {
	case model.SourceTypeAPI, model.SourceTypeSwift, model.SourceTypeBatch:
	default:
		return nil, exception.NewEtlErrorf("ingestion", exception.KindValidation, "unknown source type %q", sourceType)
	}
	now := time.Now()
	src := &model.DataSource{
		ID:               model.NewID(),
		Name:             name,
		Description:      description,
		Type:             sourceType,
		ConnectionConfig: connection,
		Active:           true,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.sources.SaveDataSource(ctx, src); err != nil {
		return nil, exception.NewEtlError("ingestion", exception.KindInternal, "failed to save data source", err)
	}
	logger.Infof("Data source '%s' (%s) registered as %s.", src.Name, src.Type, src.ID)
	return src, nil
}
