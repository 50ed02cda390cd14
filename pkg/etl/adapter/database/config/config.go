package config

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type" validate:"required,oneof=sqlite postgres mysql"`
	Host     string     `yaml:"host"`
	Port     int        `yaml:"port"`
	Database string     `yaml:"database" validate:"required"`
	User     string     `yaml:"user"`
	Password string     `yaml:"password"`
	Schema   string     `yaml:"schema,omitempty"` // PostgreSQL search_path.
	Sslmode  string     `yaml:"sslmode"`
	LogLevel string     `yaml:"log_level"` // GORM log level: SILENT, ERROR, WARN, INFO.
	Pool     PoolConfig `yaml:"pool"`
}
