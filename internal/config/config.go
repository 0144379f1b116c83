// Package config holds process-level settings read from TAPLINE_* environment variables.
//
// The project itself is configured by its manifest; this package covers the
// knobs that belong to one tapline process: logging, the active environment,
// state flush rate, the interpreter used for installs and scheduler breakers.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/omarluq/tapline/internal/health"
)

// EnvPrefix prefixes every variable this package reads.
const EnvPrefix = "TAPLINE_"

// Log levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Log formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatPretty  = "pretty"
)

// Config is the process configuration.
type Config struct {
	Logging LoggingConfig `envPrefix:"LOG_"`
	// Environment overrides the manifest's default_environment.
	Environment         string `env:"ENVIRONMENT"`
	Python              string `env:"PYTHON"                  envDefault:"python3"`
	StateFlushPerMinute int    `env:"STATE_FLUSH_PER_MINUTE"  envDefault:"6"`
	// MetricsAddr serves scheduler metrics when set, e.g. ":9090".
	MetricsAddr string                      `env:"METRICS_ADDR"`
	Breaker     health.CircuitBreakerConfig `envPrefix:"SCHEDULE_"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"` // debug, info, warn, error
	Format string `env:"FORMAT"`                    // json, console, pretty
	Output string `env:"OUTPUT" envDefault:"stderr"` // stdout, stderr, or file path
	Pretty bool   `env:"PRETTY"`
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFrom reads the configuration from environ instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges the env parser cannot.
func (c *Config) Validate() error {
	errs := make([]string, 0, 2)
	if c.StateFlushPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("%sSTATE_FLUSH_PER_MINUTE must not be negative", EnvPrefix))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", FormatJSON, FormatConsole, FormatPretty:
	default:
		errs = append(errs, fmt.Sprintf("%sLOG_FORMAT must be json, console or pretty (got %q)", EnvPrefix, c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
