// Package config loads moviechat client configuration.
// Configuration lives in <data dir>/config.yaml and can be overridden with
// MOVIECHAT_* environment variables, which always win over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when neither file nor environment set a field.
const (
	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultTheme          = "dark"
	DefaultRequestTimeout = Duration(30 * time.Second)
)

// Environment override variables.
const (
	EnvAPIBaseURL = "MOVIECHAT_API_URL"
	EnvTheme      = "MOVIECHAT_THEME"
	EnvTimeout    = "MOVIECHAT_TIMEOUT"
	EnvDataDir    = "MOVIECHAT_DATA_DIR"
	EnvDebug      = "MOVIECHAT_DEBUG"
)

// Duration wraps time.Duration so YAML can carry values like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config holds all client configuration.
type Config struct {
	// Base URL of the movie-finder backend, without trailing slash.
	APIBaseURL string `yaml:"api_base_url,omitempty"`

	// TUI theme: "light", "dark", or "auto".
	Theme string `yaml:"theme,omitempty"`

	// Per-request timeout for backend calls.
	RequestTimeout Duration `yaml:"request_timeout,omitempty"`

	// Directory for credentials, archive database and logs.
	// Defaults to ~/.moviechat.
	DataDir string `yaml:"data_dir,omitempty"`

	// Debug enables file logging.
	Debug bool `yaml:"debug,omitempty"`
}

// DefaultConfigPath returns <data dir>/config.yaml.
func DefaultConfigPath() string {
	dir, err := DefaultDataDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultDataDir returns ~/.moviechat.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".moviechat"), nil
}

// Load reads the config file at path, fills defaults, and applies
// environment overrides. A missing file is not an error: defaults plus
// environment are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to defaults.
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Theme == "" {
		c.Theme = DefaultTheme
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DataDir == "" {
		if dir, err := DefaultDataDir(); err == nil {
			c.DataDir = dir
		}
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvTheme); v != "" {
		c.Theme = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = Duration(d)
		}
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Timeout returns the request timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout)
}

// Save writes the config back to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
