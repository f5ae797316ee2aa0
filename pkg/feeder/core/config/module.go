package config

import "go.uber.org/fx"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// NewLoggingConfigProvider exposes the logging section on its own.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Feeder.System.Logging
}

// Module provides *Config and its logging section to fx.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewLoggingConfigProvider),
)
