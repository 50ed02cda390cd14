package config

// StorageConfig holds configuration for the object storage used for uploads and exports.
type StorageConfig struct {
	Type            string `yaml:"type" validate:"required,oneof=local gcs"`
	BucketName      string `yaml:"bucket_name"`      // Default bucket; a sub-directory of BaseDir for local storage.
	CredentialsFile string `yaml:"credentials_file"` // Service account key for GCS.
	ProjectID       string `yaml:"project_id"`
	BaseDir         string `yaml:"base_dir"` // Root directory for local storage.
}
