// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads and validates tabsync configuration.
//
// Configuration is read from a YAML file (default
// ~/.config/tabsync/config.yaml), then overridden by environment variables
// and finally by command-line flags. Only the pieces a command actually
// needs are validated: `tabsync init` works with no file at all, while
// `tabsync upload` requires a token and base URL.
//
// Environment overrides:
//   - TABSYNC_TOKEN: integration token
//   - TABSYNC_BASE_URL: workspace API endpoint
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default tuning values. The retry defaults are deliberately patient: the
// hosted API rate-limits aggressively during bulk uploads and a long tail
// of 429/503 responses is normal.
const (
	DefaultWorkers    = 5
	DefaultMaxRetries = 14
	DefaultBaseDelay  = 2 * time.Second
	DefaultAPIVersion = "2022-06-28"

	DefaultLogMaxSizeMB = 10
	DefaultLogBackups   = 3
)

// Duration wraps time.Duration with YAML unmarshalling from strings like "2s".
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
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// RetryConfig tunes the transport retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay seeds the exponential backoff (delay doubles per attempt).
	BaseDelay Duration `yaml:"base_delay"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	// File receives the program log when set. Empty means stderr only.
	File string `yaml:"file"`

	// MaxSizeMB is the rotation threshold per log file.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `yaml:"max_backups"`
}

// Config is the tabsync configuration tree.
type Config struct {
	// BaseURL is the workspace API endpoint, e.g. "https://api.example.com/v1".
	BaseURL string `yaml:"base_url"`

	// APIVersion is sent on every request as the X-API-Version header.
	APIVersion string `yaml:"api_version"`

	// Token is the integration token ("ntn_..." or "secret_...").
	Token string `yaml:"token"`

	// Workspace is the active workspace name, recorded in logs and summaries.
	Workspace string `yaml:"workspace"`

	// Workers is the default upload worker count.
	Workers int `yaml:"workers"`

	Retry RetryConfig `yaml:"retry"`
	Log   LogConfig   `yaml:"log"`
}

// DefaultPath returns the default configuration file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "tabsync", "config.yaml"), nil
}

// Load reads the configuration file at path (or the default location when
// path is empty) and applies defaults and environment overrides.
//
// A missing file is not an error: every field has a default or can come
// from flags, so commands validate only what they need.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to defaults.
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = Duration(DefaultBaseDelay)
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = DefaultLogBackups
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TABSYNC_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("TABSYNC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
}

// ValidateToken checks the integration token format.
//
// Tokens issued by the workspace start with "ntn_" or "secret_" and are
// well over 20 characters; anything shorter is a paste error.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("token is empty")
	}
	if !strings.HasPrefix(token, "ntn_") && !strings.HasPrefix(token, "secret_") {
		return fmt.Errorf("token must start with 'ntn_' or 'secret_'")
	}
	if len(token) < 20 {
		return fmt.Errorf("token is too short to be valid")
	}
	return nil
}

// skeleton is the commented template written by `tabsync init`.
const skeleton = `# tabsync configuration
#
# Workspace API endpoint, e.g. https://api.example.com/v1 for hosted
# workspaces or your self-hosted deployment URL.
base_url: ""

# Integration token. Can also be supplied via TABSYNC_TOKEN or --token.
token: ""

# Active workspace name (recorded in logs and summaries).
workspace: ""

# Upload worker count. 1 disables concurrency and preserves row order.
workers: 5

retry:
  max_retries: 14
  base_delay: 2s

log:
  # Uncomment to mirror the log into a rotating file.
  # file: ~/.local/state/tabsync/tabsync.log
  max_size_mb: 10
  max_backups: 3
`

// WriteSkeleton writes the commented configuration template to path,
// creating parent directories. Refuses to overwrite an existing file.
func WriteSkeleton(path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(skeleton), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
