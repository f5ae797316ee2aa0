package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
)

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var merr *multierror.Error
	f := c.Feeder

	if utf8.RuneCountInString(f.Artifact.Delimiter) != 1 {
		merr = multierror.Append(merr, fmt.Errorf("artifact.delimiter must be exactly one character, got %q", f.Artifact.Delimiter))
	} else if strings.ContainsAny(f.Artifact.Delimiter, "\\\n\r") {
		merr = multierror.Append(merr, fmt.Errorf("artifact.delimiter must not be a backslash or line break"))
	} else if strings.ContainsAny(f.Artifact.Delimiter, "nrt") {
		merr = multierror.Append(merr, fmt.Errorf("artifact.delimiter must not be an escape letter, got %q", f.Artifact.Delimiter))
	} else if len(f.Artifact.NullToken) >= 2 && strings.HasPrefix(f.Artifact.NullToken[1:], f.Artifact.Delimiter) {
		merr = multierror.Append(merr, fmt.Errorf("artifact.delimiter %q collides with artifact.null_token %q", f.Artifact.Delimiter, f.Artifact.NullToken))
	}
	if !strings.HasPrefix(f.Artifact.NullToken, `\`) || len(f.Artifact.NullToken) < 2 {
		merr = multierror.Append(merr, fmt.Errorf("artifact.null_token must start with a backslash, got %q", f.Artifact.NullToken))
	}
	if strings.TrimSpace(f.Artifact.BaseDir) == "" {
		merr = multierror.Append(merr, fmt.Errorf("artifact.base_dir must not be empty"))
	}
	if f.Extract.ChunkSize <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("extract.chunk_size must be > 0, got %d", f.Extract.ChunkSize))
	}
	if f.Load.BatchSize <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("load.batch_size must be > 0, got %d", f.Load.BatchSize))
	}
	if f.Refresh.Parallelism <= 0 {
		merr = multierror.Append(merr, fmt.Errorf("refresh.parallelism must be > 0, got %d", f.Refresh.Parallelism))
	}
	switch f.Metrics.Backend {
	case "", "prometheus":
	case "otlp":
		if f.Metrics.Exporter != "otlpgrpc" && f.Metrics.Exporter != "otlphttp" {
			merr = multierror.Append(merr, fmt.Errorf("metrics.exporter must be otlpgrpc or otlphttp, got %q", f.Metrics.Exporter))
		}
	default:
		merr = multierror.Append(merr, fmt.Errorf("metrics.backend must be prometheus or otlp, got %q", f.Metrics.Backend))
	}
	switch f.Tracing.Exporter {
	case "", "none", "otlpgrpc", "otlphttp":
	default:
		merr = multierror.Append(merr, fmt.Errorf("tracing.exporter must be one of none, otlpgrpc, otlphttp; got %q", f.Tracing.Exporter))
	}

	if section := c.DatabaseSection(); section != nil {
		for role, ref := range map[string]string{
			"source_db_ref":      f.Infrastructure.SourceDBRef,
			"destination_db_ref": f.Infrastructure.DestinationDBRef,
		} {
			if _, ok := section[ref]; !ok {
				merr = multierror.Append(merr, fmt.Errorf("infrastructure.%s '%s' has no adapter.database entry", role, ref))
			}
		}
	}

	if err := merr.ErrorOrNil(); err != nil {
		return exception.NewConfigError(moduleName, "invalid configuration", err)
	}
	return nil
}
