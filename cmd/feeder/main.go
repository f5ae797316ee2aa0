package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "embed"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/feeder/internal/app"
	config "github.com/tigerroll/feeder/pkg/feeder/core/config"
	"github.com/tigerroll/feeder/pkg/feeder/core/config/jsl"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

// embeddedConfig is the default application configuration. FEEDER_CONFIG names a file to use instead.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// embeddedJobs defines the destination tables and how each is extracted and loaded.
// FEEDER_JOBS names a file to use instead.
//
//go:embed resources/jobs.yaml
var embeddedJobs []byte

func loadConfigBytes() (config.EmbeddedConfig, error) {
	path := os.Getenv("FEEDER_CONFIG")
	if path == "" {
		return embeddedConfig, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file '%s': %w", path, err)
	}
	return data, nil
}

func loadJobs() (*jsl.Document, error) {
	if path := os.Getenv("FEEDER_JOBS"); path != "" {
		return jsl.LoadDefinitionFromFile(path)
	}
	return jsl.LoadDefinitionFromBytes(embeddedJobs)
}

func main() {
	cmd, err := app.ParseCommand(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling for graceful shutdown (e.g., Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping after the current statement...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	cfgBytes, err := loadConfigBytes()
	if err != nil {
		logger.Fatalf("%v", err)
	}
	jobs, err := loadJobs()
	if err != nil {
		logger.Fatalf("Failed to load job definitions: %v", err)
	}

	err = app.RunApplication(ctx, app.Options{
		EnvFilePath:    envFilePath,
		EmbeddedConfig: cfgBytes,
		Jobs:           jobs,
		DBProviders:    app.SelectDBProviders(os.Getenv("DB_ADAPTERS")),
		Out:            os.Stdout,
	}, cmd)
	if err != nil {
		logger.Errorf("Command '%s' failed: %v", cmd.Name, err)
		cancel()
		os.Exit(1)
	}
}
