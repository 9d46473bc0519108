// Package config loads the bridge configuration from defaults, an optional
// YAML file and OMNIFOCUS_MCP_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shaharia-lab/omnifocus-gtd/mcp"
	"github.com/shaharia-lab/omnifocus-gtd/observability"
	"github.com/shaharia-lab/omnifocus-gtd/omnifocus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OMNIFOCUS_MCP_"

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Executor ExecutorConfig `yaml:"executor"`
	Log      LogConfig      `yaml:"log"`
	Trace    TraceConfig    `yaml:"trace"`
}

// ServerConfig is what initialize reports to the client.
type ServerConfig struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version"`
	ProtocolVersion string `yaml:"protocol_version"`
}

// ExecutorConfig configures the osascript runner.
type ExecutorConfig struct {
	// Binary is the interpreter. Defaults to osascript.
	Binary string `yaml:"binary"`
	// Args are extra arguments placed before the script.
	Args []string `yaml:"args"`
	// Timeout bounds a single command.
	Timeout time.Duration `yaml:"timeout"`
	// MinInterval spaces out command launches. Zero means no limit.
	MinInterval time.Duration `yaml:"min_interval"`
	// MaxOutputBytes caps the captured output of a command.
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// LogConfig selects the log level and backend. Logs always go to stderr.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TraceConfig turns on span export. Spans are written to stderr.
type TraceConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "omnifocus-gtd",
			Version:         "1.0.0",
			ProtocolVersion: mcp.ProtocolVersion,
		},
		Executor: ExecutorConfig{
			Binary:         omnifocus.DefaultBinary,
			Timeout:        omnifocus.DefaultTimeout,
			MaxOutputBytes: omnifocus.DefaultMaxOutputBytes,
		},
		Log: LogConfig{
			Level:  "info",
			Format: observability.FormatText,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and then with the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables that are already set keep their value.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from OMNIFOCUS_MCP_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str("SERVER_NAME", &c.Server.Name)
	str("SERVER_VERSION", &c.Server.Version)
	str("SERVER_PROTOCOL_VERSION", &c.Server.ProtocolVersion)
	str("EXECUTOR_BINARY", &c.Executor.Binary)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "EXECUTOR_ARGS"); ok && v != "" {
		c.Executor.Args = strings.Fields(v)
	}
	if err := duration("EXECUTOR_TIMEOUT", &c.Executor.Timeout); err != nil {
		return err
	}
	if err := duration("EXECUTOR_MIN_INTERVAL", &c.Executor.MinInterval); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "EXECUTOR_MAX_OUTPUT_BYTES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sEXECUTOR_MAX_OUTPUT_BYTES: %w", EnvPrefix, err)
		}
		c.Executor.MaxOutputBytes = n
	}
	if v, ok := lookup(EnvPrefix + "TRACE_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sTRACE_ENABLED: %w", EnvPrefix, err)
		}
		c.Trace.Enabled = enabled
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Name == "" || c.Server.Version == "" {
		return fmt.Errorf("server.name and server.version are required")
	}
	if c.Server.ProtocolVersion == "" {
		return fmt.Errorf("server.protocol_version is required")
	}
	if c.Executor.Binary == "" {
		return fmt.Errorf("executor.binary is required")
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive, got %s", c.Executor.Timeout)
	}
	if c.Executor.MinInterval < 0 {
		return fmt.Errorf("executor.min_interval cannot be negative, got %s", c.Executor.MinInterval)
	}
	if c.Executor.MaxOutputBytes <= 0 {
		return fmt.Errorf("executor.max_output_bytes must be positive, got %d", c.Executor.MaxOutputBytes)
	}

	switch strings.ToLower(c.Log.Format) {
	case observability.FormatText, observability.FormatJSON, observability.FormatZap:
	default:
		return fmt.Errorf("log.format: unknown format %q (supported: text, json, zap)", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q (supported: debug, info, warn, error)", c.Log.Level)
	}

	return nil
}

// ExecutorOptions converts the executor section for omnifocus.NewOSAScriptExecutor.
func (c *Config) ExecutorOptions() omnifocus.ExecutorConfig {
	return omnifocus.ExecutorConfig{
		Binary:         c.Executor.Binary,
		Args:           c.Executor.Args,
		Timeout:        c.Executor.Timeout,
		MinInterval:    c.Executor.MinInterval,
		MaxOutputBytes: c.Executor.MaxOutputBytes,
	}
}

// LoggerOptions converts the log section for observability.NewLogger.
func (c *Config) LoggerOptions() observability.Options {
	return observability.Options{
		Level:  c.Log.Level,
		Format: c.Log.Format,
	}
}
