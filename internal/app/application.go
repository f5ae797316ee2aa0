// Package app assembles the feeder from its fx modules and runs one command against it.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm/mysql"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm/postgres"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/database/gorm/sqlite"
	"github.com/tigerroll/feeder/pkg/feeder/adapter/storage/local"
	"github.com/tigerroll/feeder/pkg/feeder/component/migration"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/core/config/jsl"
	"github.com/tigerroll/feeder/pkg/feeder/core/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/engine/pipeline"
	"github.com/tigerroll/feeder/pkg/feeder/engine/refresh"
	infraMetrics "github.com/tigerroll/feeder/pkg/feeder/infrastructure/metrics"
	"github.com/tigerroll/feeder/pkg/feeder/infrastructure/tracing"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// DBProviderModules maps the names accepted in DB_ADAPTERS to their dialect modules.
var DBProviderModules = map[string]fx.Option{
	"postgres": postgres.Module,
	"mysql":    mysql.Module,
	"sqlite":   sqlite.Module,
}

// stopTimeout bounds the fx OnStop hooks, which flush metrics and traces and close connections.
const stopTimeout = 30 * time.Second

// Options carries what main resolved before the container is built.
type Options struct {
	EnvFilePath    string
	EmbeddedConfig config.EmbeddedConfig
	Jobs           *jsl.Document
	// DBProviders are the dialect modules to register; nil registers all of them.
	DBProviders []fx.Option
	// Out receives command output such as the table list.
	Out io.Writer
}

// SelectDBProviders returns the dialect modules named in a comma-separated list.
// An empty list selects every dialect; unknown names are skipped with a warning.
func SelectDBProviders(names string) []fx.Option {
	if strings.TrimSpace(names) == "" {
		names = "postgres,mysql,sqlite"
	}
	options := make([]fx.Option, 0)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if module, ok := DBProviderModules[name]; ok {
			options = append(options, module)
			logger.Debugf("DB Provider '%s' selected and registered.", name)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", name)
		}
	}
	return options
}

// NewApplication builds the fx container. Targets are populated from the graph, so only the
// constructors they depend on run.
func NewApplication(opts Options, targets ...interface{}) *fx.App {
	providers := opts.DBProviders
	if providers == nil {
		providers = SelectDBProviders("")
	}
	return fx.New(
		fx.Supply(
			opts.EmbeddedConfig,
			opts.Jobs,
			fx.Annotate(opts.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
		),
		logger.Module,
		config.Module,
		metrics.Module,
		infraMetrics.Module,
		tracing.Module,
		gormadapter.Module,
		fx.Options(providers...),
		local.Module,
		pipeline.Module,
		refresh.Module,
		migration.Module,
		fx.Populate(targets...),
	)
}

// RunApplication starts the container, runs cmd and stops the container again.
// The returned error is the command's failure, or a start or stop failure.
func RunApplication(ctx context.Context, opts Options, cmd Command) (err error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	var (
		service    *refresh.Service
		migrator   *migration.Migrator
		migrations migration.Migrations
		app        *fx.App
	)
	if cmd.Name == CommandMigrate {
		app = NewApplication(opts, &migrator, &migrations)
	} else {
		app = NewApplication(opts, &service)
	}
	if err := app.Err(); err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			logger.Errorf("Failed to stop application cleanly: %v", stopErr)
			if err == nil {
				err = stopErr
			}
		}
	}()

	switch cmd.Name {
	case CommandMigrate:
		return runMigrate(ctx, opts.Out, migrator, migrations, cmd.Direction)
	case CommandTables:
		for _, table := range service.Tables() {
			fmt.Fprintln(opts.Out, table)
		}
		return nil
	case CommandRebuild:
		results, err := service.RebuildAll(ctx, cmd.Tables...)
		report(opts.Out, results)
		return err
	case CommandRefresh:
		if cmd.Tables[0] == AllTables {
			results, err := service.RefreshAll(ctx, cmd.KeyField, cmd.KeyValue)
			report(opts.Out, results)
			return err
		}
		result, err := service.Refresh(ctx, cmd.Tables[0], cmd.KeyField, cmd.KeyValue)
		if err != nil {
			return err
		}
		report(opts.Out, []*refresh.Result{result})
		return nil
	}
	return fmt.Errorf("unknown command '%s'", cmd.Name)
}

// runMigrate runs one migration command. golang-migrate closes the destination connection when a
// run ends, so each invocation performs exactly one migration operation.
func runMigrate(ctx context.Context, out io.Writer, m *migration.Migrator, set migration.Migrations, direction string) error {
	switch direction {
	case "up":
		if err := m.Up(ctx, set.FS, set.Path); err != nil {
			return err
		}
	case "down":
		if err := m.Down(ctx, set.FS, set.Path); err != nil {
			return err
		}
	case "version":
		version, dirty, err := m.Version(ctx, set.FS, set.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate direction '%s'", direction)
	}
	fmt.Fprintf(out, "migrate %s completed\n", direction)
	return nil
}

// report prints one line per loaded table.
func report(out io.Writer, results []*refresh.Result) {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(out, "%s\t%d rows\t%s\n", r.Table, r.Rows, r.Duration.Round(time.Millisecond))
	}
}
