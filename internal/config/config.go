// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for denali.
//
// Configuration is read from ~/.denali/config.toml with built-in defaults
// and environment variable overrides (DENALI_*).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete denali client configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Stream settings
	Stream StreamConfig `toml:"stream"`

	// Storage settings
	Storage StorageConfig `toml:"storage"`

	// UI settings
	UI UIConfig `toml:"ui"`
}

// ServerConfig contains backend connection configuration.
type ServerConfig struct {
	// BaseURL is the dashboard backend URL, without trailing slash
	BaseURL string `toml:"base_url"`
	// RequestTimeoutSecs is the timeout for non-streaming requests
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// MaxRequestsPerSec throttles outbound calls (0 = unlimited)
	MaxRequestsPerSec float64 `toml:"max_requests_per_sec"`
}

// StreamConfig contains streaming transport configuration.
type StreamConfig struct {
	// IdleTimeoutSecs is how long a turn may go without any stream event
	// before the client synthesizes an error and gives up on the turn.
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
}

// StorageConfig contains local state configuration.
type StorageConfig struct {
	// StateDir is where credentials and logs live (default ~/.denali)
	StateDir string `toml:"state_dir"`
}

// UIConfig contains terminal UI configuration.
type UIConfig struct {
	// RenderMarkdown enables glamour rendering of completed answers
	RenderMarkdown bool `toml:"render_markdown"`
	// TitleWidth is the display width for chat titles in the sidebar
	TitleWidth int `toml:"title_width"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:            "http://localhost:8000",
			RequestTimeoutSecs: 30,
			MaxRequestsPerSec:  0,
		},
		Stream: StreamConfig{
			IdleTimeoutSecs: 90,
		},
		Storage: StorageConfig{
			StateDir: "",
		},
		UI: UIConfig{
			RenderMarkdown: true,
			TitleWidth:     32,
		},
	}
}

// RequestTimeout returns the request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// IdleTimeout returns the stream idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Stream.IdleTimeoutSecs) * time.Second
}

// StateDir returns the resolved state directory.
func (c *Config) StateDir() (string, error) {
	if c.Storage.StateDir != "" {
		return c.Storage.StateDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".denali"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Path returns the default config file location (~/.denali/config.toml).
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".denali", "config.toml"), nil
}

// Load reads configuration from the default location, applying defaults
// for anything unset and environment overrides on top. A missing config
// file is not an error; defaults are returned.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads configuration from a specific file path.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnvOverrides(&cfg)
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// applyEnvOverrides applies DENALI_* environment variables over the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DENALI_BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("DENALI_REQUEST_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RequestTimeoutSecs = n
		}
	}
	if v := os.Getenv("DENALI_IDLE_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.IdleTimeoutSecs = n
		}
	}
	if v := os.Getenv("DENALI_STATE_DIR"); v != "" {
		cfg.Storage.StateDir = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for invalid values and clamps
// out-of-range numbers to usable bounds.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q", c.Server.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must be http or https, got %q", u.Scheme)
	}

	if c.Server.RequestTimeoutSecs <= 0 {
		c.Server.RequestTimeoutSecs = 30
	}
	if c.Stream.IdleTimeoutSecs <= 0 {
		c.Stream.IdleTimeoutSecs = 90
	}
	if c.UI.TitleWidth <= 0 {
		c.UI.TitleWidth = 32
	}
	return nil
}

// Save writes the configuration to the default location.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
