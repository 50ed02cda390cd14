package model

import "time"

// DataSource is a registered origin of ingested data.
type DataSource struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Type             SourceType `json:"source_type"`
	ConnectionConfig Metadata   `json:"connection_config"`
	Active           bool       `json:"is_active"`
	CreatedBy        string     `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// User is an entry of the identity directory.
type User struct {
	ID    string `yaml:"id" validate:"required"`
	Email string `yaml:"email" validate:"omitempty,email"`
	Role  Role   `yaml:"role" validate:"required,oneof=admin data_engineer analyst viewer"`
}
