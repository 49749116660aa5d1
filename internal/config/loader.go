// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator, then the
//     cross-section rules validator tags cannot express.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig to aid debugging.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loaderDeps holds the injectable steps of the loader so tests can run
// without a .env file on disk.
type loaderDeps struct {
	loadDotenv func(filenames ...string) error
	process    func(prefix string, spec interface{}) error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		loadDotenv: godotenv.Load,
		process:    envconfig.Process,
	}
}

// LoadConfig loads and validates the configuration from the environment.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	// Step 1: Enforce UTC timezone.
	time.Local = time.UTC

	// Step 2: godotenv does not override variables already set in the
	// environment and a missing file is not an error.
	_ = deps.loadDotenv()

	// Step 3: Populate from struct tags. The empty prefix means tags are used
	// verbatim (envconfig:"APP_ENV" reads APP_ENV).
	var cfg Config
	if err := deps.process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Build metadata.
	cfg.Build = NewBuildInfo()

	// Step 5: Validate.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := cfg.validateSections(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateSections checks rules that span config sections.
func (c *Config) validateSections() error {
	if c.Dispatch.DeferredMode == "sqs" && c.AWS.NotificationQueue == "" {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "SQS_NOTIFICATIONS is required when DEFERRED_MODE=sqs",
		}
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns),
		}
	}
	return nil
}
