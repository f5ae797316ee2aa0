// Package config holds the feeder's runtime configuration: which databases are the source and the
// destination, where extraction artifacts live, and the defaults for chunking, loading and observability.
package config

// EmbeddedConfig holds the raw bytes of the YAML configuration, typically embedded by main.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the feeder log level (e.g. "INFO", "DEBUG").
	Level string `yaml:"level"`
	// SQLLevel is the level used for GORM's SQL logging; SILENT unless debugging queries.
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig names the database connections (keys under adapter.database) playing each role.
type InfrastructureConfig struct {
	// SourceDBRef is the read-only normalized store.
	SourceDBRef string `yaml:"source_db_ref"`
	// DestinationDBRef is the denormalized display store written by loaders.
	DestinationDBRef string `yaml:"destination_db_ref"`
}

// ArtifactConfig controls where and how extraction artifacts are written.
type ArtifactConfig struct {
	// BaseDir is the root directory for artifacts.
	BaseDir string `yaml:"base_dir"`
	// Bucket is the sub-directory of BaseDir holding this run's artifacts.
	Bucket string `yaml:"bucket"`
	// Delimiter is the single-character field delimiter. Defaults to TAB.
	Delimiter string `yaml:"delimiter"`
	// NullToken is the token written for NULL fields. It must start with a backslash.
	NullToken string `yaml:"null_token"`
	// Trusting skips value escaping for every job. Individual jobs may also opt in.
	Trusting bool `yaml:"trusting"`
}

// ExtractConfig holds extraction defaults.
type ExtractConfig struct {
	// ChunkSize is used by chunked jobs that do not declare their own size.
	ChunkSize int64 `yaml:"chunk_size"`
}

// LoadDefaults holds loader defaults.
type LoadDefaults struct {
	// BatchSize is the number of rows per INSERT statement.
	BatchSize int `yaml:"batch_size"`
	// RemoveArtifact deletes an artifact once it has been loaded successfully.
	RemoveArtifact bool `yaml:"remove_artifact"`
}

// MigrationConfig locates the destination schema migrations applied by "feeder migrate".
type MigrationConfig struct {
	// Dir holds golang-migrate files: <version>_<title>.up.sql and .down.sql.
	Dir string `yaml:"dir"`
	// Table records the applied migration version.
	Table string `yaml:"table"`
}

// RefreshConfig controls the refresh service.
type RefreshConfig struct {
	// Parallelism bounds how many tables a full rebuild processes at once.
	Parallelism int `yaml:"parallelism"`
}

// MetricsConfig controls the metric recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "prometheus" (default) or "otlp".
	Backend   string `yaml:"backend"`
	Namespace string `yaml:"namespace"`
	// TextfilePath receives the Prometheus registry in text format when the process stops,
	// for collection by a node exporter textfile collector.
	TextfilePath string `yaml:"textfile_path"`
	// Exporter, Endpoint and Insecure configure the otlp backend. Exporter is "otlpgrpc" or "otlphttp".
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// AsyncBufferSize, when positive, queues recordings for a background worker.
	// Per-row lookup metrics then stay off the extraction path.
	AsyncBufferSize int `yaml:"async_buffer_size"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is one of "otlpgrpc", "otlphttp" or "none".
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// FeederConfig holds everything under the "feeder" top-level key.
type FeederConfig struct {
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Artifact       ArtifactConfig       `yaml:"artifact"`
	Extract        ExtractConfig        `yaml:"extract"`
	Load           LoadDefaults         `yaml:"load"`
	Refresh        RefreshConfig        `yaml:"refresh"`
	Migration      MigrationConfig      `yaml:"migration"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Tracing        TracingConfig        `yaml:"tracing"`
	// AdapterConfigs holds raw adapter sections, e.g. adapter.database.<name>.
	// They are decoded by the adapter packages with mapstructure.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Feeder FeederConfig `yaml:"feeder"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Feeder: FeederConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: string(LogLevelSilent)},
			},
			Infrastructure: InfrastructureConfig{
				SourceDBRef:      "source",
				DestinationDBRef: "destination",
			},
			Artifact: ArtifactConfig{
				BaseDir:   "./data",
				Bucket:    "reports",
				Delimiter: "\t",
				NullToken: `\N`,
			},
			Extract: ExtractConfig{ChunkSize: 100000},
			Load:    LoadDefaults{BatchSize: 500},
			Refresh: RefreshConfig{Parallelism: 1},
			Migration: MigrationConfig{
				Dir:   "migrations",
				Table: "feeder_schema_migrations",
			},
			Metrics: MetricsConfig{Backend: "prometheus", Namespace: "feeder", Exporter: "otlpgrpc"},
			Tracing: TracingConfig{Exporter: "none", ServiceName: "feeder"},

			AdapterConfigs: map[string]interface{}{},
		},
	}
}

// DatabaseSection returns the raw adapter.database map, or nil when absent.
func (c *Config) DatabaseSection() map[string]interface{} {
	raw, ok := c.Feeder.AdapterConfigs["database"]
	if !ok {
		return nil
	}
	section, _ := raw.(map[string]interface{})
	return section
}
