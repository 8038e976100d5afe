package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the mirror reads.
const EnvPrefix = "THINGMIRROR_"

// Config holds all configuration options for the mirror
type Config struct {
	// Remote API access
	API APIConfig `yaml:"api" toml:"api"`

	// What to mirror and how hard to try
	Mirror MirrorConfig `yaml:"mirror" toml:"mirror"`

	// Where progress is persisted
	Checkpoint CheckpointConfig `yaml:"checkpoint" toml:"checkpoint"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// APIConfig holds the remote API settings
type APIConfig struct {
	Token             string   `yaml:"token" toml:"token"`
	BaseURL           string   `yaml:"base_url" toml:"base_url"`
	Timeout           Duration `yaml:"timeout" toml:"timeout"`
	RequestsPerMinute int      `yaml:"requests_per_minute" toml:"requests_per_minute"`
	// RateLimiter is "window" (spread over a moving minute) or "bucket"
	// (bursts up to the limit, refilled each minute).
	RateLimiter       string   `yaml:"rate_limiter" toml:"rate_limiter"`
}

// MirrorConfig holds the traversal settings. Start 0 means resume from the
// checkpoint; End 0 means run until interrupted.
type MirrorConfig struct {
	Output      string `yaml:"output" toml:"output"`
	Workers     int    `yaml:"workers" toml:"workers"`
	Start       uint64 `yaml:"start" toml:"start"`
	End         uint64 `yaml:"end" toml:"end"`
	MaxAttempts int    `yaml:"max_attempts" toml:"max_attempts"`
	Backoff     string `yaml:"backoff" toml:"backoff"`
}

// CheckpointConfig selects the checkpoint backend
type CheckpointConfig struct {
	Backend string `yaml:"backend" toml:"backend"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// Duration is a time.Duration written as "30s" in config files.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://api.thingiverse.com",
			Timeout:           Duration{30 * time.Second},
			RequestsPerMinute: 60,
			RateLimiter:       "window",
		},
		Mirror: MirrorConfig{
			Output:      "content",
			Workers:     4,
			MaxAttempts: 3,
			Backoff:     "none",
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setUint := func(name string, dst *uint64) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	setString("TOKEN", &c.API.Token)
	setString("BASE_URL", &c.API.BaseURL)
	setInt("REQUESTS_PER_MINUTE", &c.API.RequestsPerMinute)
	setString("RATE_LIMITER", &c.API.RateLimiter)
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		if err := c.API.Timeout.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err))
		}
	}

	setString("OUTPUT", &c.Mirror.Output)
	setInt("WORKERS", &c.Mirror.Workers)
	setUint("START", &c.Mirror.Start)
	setUint("END", &c.Mirror.End)
	setInt("MAX_ATTEMPTS", &c.Mirror.MaxAttempts)
	setString("BACKOFF", &c.Mirror.Backoff)

	setString("CHECKPOINT_BACKEND", &c.Checkpoint.Backend)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML or TOML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(path) {
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".thingmirror.yaml",
		".thingmirror.yml",
		".thingmirror.toml",
		filepath.Join(home, ".config", "thingmirror", "config.yaml"),
		filepath.Join(home, ".config", "thingmirror", "config.yml"),
		filepath.Join(home, ".config", "thingmirror", "config.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "thingmirror", "config.yaml")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api base URL is required"))
	}
	if c.API.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	switch strings.ToLower(c.API.RateLimiter) {
	case "", "window", "bucket":
	default:
		errs = append(errs, fmt.Errorf("invalid rate limiter %q", c.API.RateLimiter))
	}

	if c.Mirror.Output == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Mirror.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Mirror.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Mirror.End > 0 && c.Mirror.Start > c.Mirror.End {
		errs = append(errs, fmt.Errorf("start %d is past end %d", c.Mirror.Start, c.Mirror.End))
	}
	switch strings.ToLower(c.Mirror.Backoff) {
	case "", "none", "constant", "exponential":
	default:
		errs = append(errs, fmt.Errorf("invalid backoff %q", c.Mirror.Backoff))
	}

	switch strings.ToLower(c.Checkpoint.Backend) {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("invalid checkpoint backend %q", c.Checkpoint.Backend))
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
		"error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Encode renders the configuration in the format implied by path's extension.
func (c *Config) Encode(path string) ([]byte, error) {
	if isTOML(path) {
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(c)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := c.Encode(path)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold the API token
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Redacted returns a copy with the token masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.API.Token != "" {
		out.API.Token = "********"
	}
	return &out
}

// MergeCommandLineFlags merges explicitly set command line flags into the
// configuration. Keys are flag names.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if token, ok := flags["token"].(string); ok && token != "" {
		c.API.Token = token
	}
	if baseURL, ok := flags["base-url"].(string); ok && baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Mirror.Output = outputDir
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Mirror.Workers = workers
	}
	if start, ok := flags["start"].(uint64); ok && start > 0 {
		c.Mirror.Start = start
	}
	if end, ok := flags["end"].(uint64); ok && end > 0 {
		c.Mirror.End = end
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Mirror.MaxAttempts = attempts
	}
	if backoff, ok := flags["backoff"].(string); ok && backoff != "" {
		c.Mirror.Backoff = backoff
	}
	if backend, ok := flags["checkpoint"].(string); ok && backend != "" {
		c.Checkpoint.Backend = backend
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile, ok := flags["log-file"].(string); ok && logFile != "" {
		c.Logging.File = logFile
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files never override variables already set
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".thingmirror.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
