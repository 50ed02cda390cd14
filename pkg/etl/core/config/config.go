// Package config defines the configuration of the ETL platform. A *Config is built once at
// startup and passed explicitly to every component constructor.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	dbconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/database/config"
	storageconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage/config"
	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// Config is the root configuration document.
type Config struct {
	ETL ETLConfig `yaml:"etl"`
}

// ETLConfig groups every section under the "etl:" key.
type ETLConfig struct {
	Log       LogConfig                   `yaml:"log"`
	Database  dbconfig.DatabaseConfig     `yaml:"database"`
	Storage   storageconfig.StorageConfig `yaml:"storage"`
	Ingestion IngestionConfig             `yaml:"ingestion"`
	Export    ExportConfig                `yaml:"export"`
	Transform TransformConfig             `yaml:"transform"`
	Exception ExceptionConfig             `yaml:"exception"`
	Retry     RetryConfig                 `yaml:"retry"`
	Workflow  WorkflowConfig              `yaml:"workflow"`
	Runner    RunnerConfig                `yaml:"runner"`
	Metrics   MetricsConfig               `yaml:"metrics"`
	Tracing   TracingConfig               `yaml:"tracing"`
	Users     []model.User                `yaml:"users" validate:"dive"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL debug info warn error fatal"`
	File  string `yaml:"file"`
}

// IngestionConfig bounds batch uploads.
type IngestionConfig struct {
	MaxFileSizeMB     int      `yaml:"max_file_size_mb" validate:"gt=0"`
	UploadDir         string   `yaml:"upload_dir" validate:"required"`
	AllowedExtensions []string `yaml:"allowed_extensions" validate:"min=1"`
}

// MaxFileSizeBytes converts MaxFileSizeMB to bytes.
func (c IngestionConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// ExportConfig controls Parquet exports of job output.
type ExportConfig struct {
	OutputBaseDir   string `yaml:"output_base_dir" validate:"required"`
	CompressionType string `yaml:"compression_type" validate:"omitempty,oneof=SNAPPY GZIP NONE snappy gzip none"`
}

// TransformConfig tunes the transformation engine.
type TransformConfig struct {
	// HighNullThreshold flags a column whose null ratio exceeds it.
	HighNullThreshold float64 `yaml:"high_null_threshold" validate:"gt=0,lte=1"`
	// DefaultCoercionPolicy applies when a validate_data_types rule sets no on_failure.
	DefaultCoercionPolicy model.CoercionPolicy `yaml:"default_coercion_policy" validate:"oneof=keepOriginal nullify fail"`
}

// ExceptionConfig tunes the exception reporter.
type ExceptionConfig struct {
	// AutoCorrectionThreshold: suggestions strictly above it are applied automatically.
	AutoCorrectionThreshold float64 `yaml:"auto_correction_threshold" validate:"gte=0,lte=1"`
	RecentLimit             int     `yaml:"recent_limit" validate:"gt=0"`
}

// RetryConfig bounds automatic retries.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" validate:"gt=0"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// WorkflowConfig lists the roles involved in approvals and alerts.
type WorkflowConfig struct {
	ApproverRoles []model.Role `yaml:"approver_roles" validate:"min=1"`
	AlertRoles    []model.Role `yaml:"alert_roles" validate:"min=1"`
}

// RunnerConfig bounds background execution.
type RunnerConfig struct {
	Concurrency int `yaml:"concurrency" validate:"gt=0"`
}

// MetricsConfig configures the metric recorder.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend" validate:"omitempty,oneof=prometheus otel"`
	Endpoint string `yaml:"endpoint"`
	Listen   string `yaml:"listen"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter" validate:"omitempty,oneof=none grpc http"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		ETL: ETLConfig{
			Log: LogConfig{Level: "INFO"},
			Database: dbconfig.DatabaseConfig{
				Type:     "sqlite",
				Database: "etl.db",
				LogLevel: "SILENT",
				Pool:     dbconfig.PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetimeMinutes: 30},
			},
			Storage: storageconfig.StorageConfig{Type: "local", BaseDir: "./data", BucketName: "exports"},
			Ingestion: IngestionConfig{
				MaxFileSizeMB:     100,
				UploadDir:         "uploads",
				AllowedExtensions: []string{".csv", ".json", ".xlsx"},
			},
			Export:    ExportConfig{OutputBaseDir: "output", CompressionType: "SNAPPY"},
			Transform: TransformConfig{HighNullThreshold: 0.5, DefaultCoercionPolicy: model.CoerceKeepOriginal},
			Exception: ExceptionConfig{AutoCorrectionThreshold: 0.8, RecentLimit: 50},
			Retry:     RetryConfig{MaxAttempts: 3, InitialInterval: time.Second, Multiplier: 2.0},
			Workflow: WorkflowConfig{
				ApproverRoles: []model.Role{model.RoleAdmin, model.RoleDataEngineer},
				AlertRoles:    []model.Role{model.RoleAdmin},
			},
			Runner:  RunnerConfig{Concurrency: 4},
			Metrics: MetricsConfig{Backend: "prometheus", Listen: ":9090"},
			Tracing: TracingConfig{Exporter: "none", ServiceName: "surfin-etl"},
		},
	}
}

var configValidator = validator.New()

// Validate checks the struct constraints of every section.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsApprover reports whether role may see and decide approvals.
func (c *Config) IsApprover(role model.Role) bool {
	for _, r := range c.ETL.Workflow.ApproverRoles {
		if r == role {
			return true
		}
	}
	return false
}
