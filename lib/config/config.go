// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Loom commands.
//
// Configuration is loaded from a single file specified by:
//   - LOOM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides. The
// only expansion performed is ${HOME} and similar path variables for
// portability.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "1m30s".
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

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the standard duration formatting.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config is the master configuration for Loom.
type Config struct {
	// Homeserver configures the connection to the Matrix homeserver.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Paths configures file and directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Sync configures the sync engine.
	Sync SyncConfig `yaml:"sync"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// HomeserverConfig configures the connection to the Matrix homeserver.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver, e.g.
	// https://matrix.loom.chat. Required.
	URL string `yaml:"url"`

	// Timeout is the HTTP timeout for non-sync requests.
	// Default: 30s. The long-poll sync request manages its own
	// deadline and is not subject to this timeout.
	Timeout Duration `yaml:"timeout"`
}

// PathsConfig configures file and directory locations.
type PathsConfig struct {
	// Root is the base directory for Loom data.
	// Default: ~/.local/share/loom
	Root string `yaml:"root"`

	// Session is the path of the sealed session file written by
	// loom-login. Default: ${LOOM_ROOT}/session.json
	Session string `yaml:"session"`

	// Checkpoint is the path of the sync checkpoint file.
	// Default: ${LOOM_ROOT}/sync.ckpt
	Checkpoint string `yaml:"checkpoint"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	// PollTimeout is the long-poll duration requested from the
	// server per sync call. Default: 30s.
	PollTimeout Duration `yaml:"poll_timeout"`

	// MaxBackoff caps the exponential retry delay after transient
	// failures. Default: 60s.
	MaxBackoff Duration `yaml:"max_backoff"`

	// CheckpointInterval is how often loom-tail persists the cursor
	// and room snapshots. Default: 1m.
	CheckpointInterval Duration `yaml:"checkpoint_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	// Default: info.
	Level string `yaml:"level"`

	// Format selects the handler: "json" or "text". Default: json.
	Format string `yaml:"format"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file, so every field has a
// sensible zero-value. The config file itself is required for Load.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "loom")

	return &Config{
		Homeserver: HomeserverConfig{
			Timeout: Duration(30 * time.Second),
		},
		Paths: PathsConfig{
			Root:       defaultRoot,
			Session:    filepath.Join(defaultRoot, "session.json"),
			Checkpoint: filepath.Join(defaultRoot, "sync.ckpt"),
		},
		Sync: SyncConfig{
			PollTimeout:        Duration(30 * time.Second),
			MaxBackoff:         Duration(60 * time.Second),
			CheckpointInterval: Duration(time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from the LOOM_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks — if LOOM_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("LOOM_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("LOOM_CONFIG environment variable not set; " +
			"set it to the path of your loom.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth: environment variables do not
// override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"LOOM_ROOT": c.Paths.Root,
		"HOME":      os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["LOOM_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Session = expandVars(c.Paths.Session, vars)
	c.Paths.Checkpoint = expandVars(c.Paths.Checkpoint, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	} else if parsed, err := url.Parse(c.Homeserver.URL); err != nil {
		errs = append(errs, fmt.Errorf("homeserver.url: %w", err))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errs = append(errs, fmt.Errorf("homeserver.url must be http or https, got %q", parsed.Scheme))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Sync.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_timeout must be positive"))
	}
	if c.Sync.MaxBackoff <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_backoff must be positive"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the data root directory if it does not exist.
// Session and checkpoint files live directly under the root.
func (c *Config) EnsurePaths() error {
	if c.Paths.Root == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.Root, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Root, err)
	}
	return nil
}
