package config

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// Params are the inputs of NewConfigProvider.
type Params struct {
	fx.In
	Raw         RawConfig
	EnvFilePath string `name:"envFilePath" optional:"true"`
}

// NewConfigProvider loads the configuration and applies the logging section.
func NewConfigProvider(p Params) (*Config, error) {
	cfg, err := LoadConfig(p.EnvFilePath, p.Raw)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.ETL.Log.Level)
	logger.Infof("Log level set to: %s", cfg.ETL.Log.Level)
	return cfg, nil
}

// Module provides *Config from a supplied RawConfig.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
)
