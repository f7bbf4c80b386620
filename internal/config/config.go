// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/vinayprograms/planval/internal/validator"
)

// Config represents the validator configuration.
type Config struct {
	Validation ValidationConfig `toml:"validation"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Notify     NotifyConfig     `toml:"notify"`
	Output     OutputConfig     `toml:"output"`
}

// ValidationConfig contains the settings every plan is validated with.
type ValidationConfig struct {
	Tolerance      float64 `toml:"tolerance"       env:"PLANVAL_TOLERANCE"`       // numeric comparison and time grouping epsilon
	ContinueAnyway bool    `toml:"continue_anyway" env:"PLANVAL_CONTINUE_ANYWAY"` // apply effects even when preconditions fail
	Verbose        bool    `toml:"verbose"         env:"PLANVAL_VERBOSE"`
	ErrorReport    bool    `toml:"error_report"    env:"PLANVAL_ERROR_REPORT"`
	StopOnError    bool    `toml:"stop_on_error"   env:"PLANVAL_STOP_ON_ERROR"`
	Workers        int     `toml:"workers"         env:"PLANVAL_WORKERS"` // plans validated concurrently
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"  env:"PLANVAL_TELEMETRY_ENABLED"`
	Endpoint string `toml:"endpoint" env:"PLANVAL_TELEMETRY_ENDPOINT"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol" env:"PLANVAL_TELEMETRY_PROTOCOL"` // grpc, http or noop
}

// MetricsConfig contains Prometheus export settings.
type MetricsConfig struct {
	Textfile string `toml:"textfile" env:"PLANVAL_METRICS_TEXTFILE"` // node-exporter textfile written after each run
}

// NotifyConfig contains verdict publication settings.
type NotifyConfig struct {
	NATSURL string `toml:"nats_url" env:"PLANVAL_NATS_URL"`
	Subject string `toml:"subject"  env:"PLANVAL_NATS_SUBJECT"`
}

// OutputConfig contains CLI output settings.
type OutputConfig struct {
	TraceDir string `toml:"trace_dir" env:"PLANVAL_TRACE_DIR"` // JSONL run trace per plan
	Width    int    `toml:"width"     env:"PLANVAL_WIDTH"`     // wrap width for diagnostics
}

// New creates a new config with defaults.
func New() *Config {
	opts := validator.DefaultOptions()
	return &Config{
		Validation: ValidationConfig{
			Tolerance:   opts.Tolerance,
			ErrorReport: opts.ErrorReport,
			StopOnError: opts.StopOnError,
			Workers:     opts.Workers,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Notify: NotifyConfig{
			Subject: "planval.verdicts",
		},
		Output: OutputConfig{
			Width: 100,
		},
	}
}

// Default returns a default configuration with environment overrides.
func Default() (*Config, error) {
	cfg := New()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadFile loads configuration from a TOML file. Environment variables
// override values from the file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from planval.toml in the current
// directory, falling back to defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	path := filepath.Join(cwd, "planval.toml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default()
	}
	return LoadFile(path)
}

func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	var errs []string
	if c.Validation.Tolerance < 0 {
		errs = append(errs, fmt.Sprintf("validation.tolerance must not be negative, got %g", c.Validation.Tolerance))
	}
	if c.Validation.Workers < 1 {
		errs = append(errs, fmt.Sprintf("validation.workers must be at least 1, got %d", c.Validation.Workers))
	}
	switch c.Telemetry.Protocol {
	case "", "noop", "grpc", "http":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.protocol must be grpc, http or noop, got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" && c.Telemetry.Protocol != "noop" {
		errs = append(errs, "telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		errs = append(errs, "notify.subject is required with notify.nats_url")
	}
	if c.Output.Width < 0 {
		errs = append(errs, fmt.Sprintf("output.width must not be negative, got %d", c.Output.Width))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Options returns the validator settings described by the configuration.
func (c *Config) Options() validator.Options {
	return validator.Options{
		Tolerance:      c.Validation.Tolerance,
		ContinueAnyway: c.Validation.ContinueAnyway,
		Verbose:        c.Validation.Verbose,
		ErrorReport:    c.Validation.ErrorReport,
		StopOnError:    c.Validation.StopOnError,
		Workers:        c.Validation.Workers,
	}
}
