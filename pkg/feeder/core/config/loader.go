package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/feeder/pkg/feeder/support/util/exception"
	"github.com/tigerroll/feeder/pkg/feeder/support/util/logger"
)

const (
	moduleName = "config"
	// envPrefix is prepended to every environment override, e.g. FEEDER_LOAD_BATCH_SIZE.
	envPrefix = "FEEDER_"
	// databaseEnvPrefix addresses a named database section, e.g. FEEDER_ADAPTER_DATABASE_SOURCE_PASSWORD.
	databaseEnvPrefix = envPrefix + "ADAPTER_DATABASE_"
)

// LoadConfig builds the configuration in four layers: defaults, the YAML document (after ${VAR}
// expansion), environment overrides derived from yaml tags, and per-database overrides.
// envFilePath names a .env file to load first; an empty path tries ./.env and ignores its absence.
func LoadConfig(envFilePath string, data EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, data, NewOsEnvironmentExpander())
}

func loadConfig(envFilePath string, data EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(data)
	if err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to expand environment placeholders", err)
	}
	// yaml.v3 leaves fields absent from the document untouched, so defaults survive.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to unmarshal config", err)
	}
	if cfg.Feeder.AdapterConfigs == nil {
		cfg.Feeder.AdapterConfigs = map[string]interface{}{}
	}

	if err := loadStructFromEnv(reflect.ValueOf(&cfg.Feeder).Elem(), envPrefix); err != nil {
		return nil, exception.NewConfigError(moduleName, "failed to load config from environment variables", err)
	}
	applyDatabaseEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewConfigProvider is the fx constructor for *Config. It also applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := LoadConfig(params.EnvFilePath, params.EmbeddedConfig)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Feeder.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Feeder.System.Logging.Level)
	return cfg, nil
}

// loadStructFromEnv walks val's fields and overrides scalars from environment variables named
// after the upper-cased yaml tag path, e.g. FEEDER_ARTIFACT_BASE_DIR. Maps are left alone.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		switch field.Kind() {
		case reflect.Struct:
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		case reflect.Map, reflect.Slice, reflect.Interface:
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// applyDatabaseEnv overrides keys of already declared database sections.
// FEEDER_ADAPTER_DATABASE_SOURCE_PASSWORD=x sets adapter.database.source.password.
func applyDatabaseEnv(cfg *Config) {
	section := cfg.DatabaseSection()
	if section == nil {
		return
	}
	for name, raw := range section {
		dbMap, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		prefix := databaseEnvPrefix + strings.ToUpper(name) + "_"
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, prefix) {
				continue
			}
			parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
			if len(parts) != 2 || parts[0] == "" {
				continue
			}
			dbMap[strings.ToLower(parts[0])] = parts[1]
		}
	}
}

// setField converts value to field's kind and assigns it.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
