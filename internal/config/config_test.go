// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// DEFAULT TESTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.BaseURL != "http://localhost:8000" {
		t.Errorf("default BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.RequestTimeoutSecs != 30 {
		t.Errorf("default RequestTimeoutSecs = %d, want 30", cfg.Server.RequestTimeoutSecs)
	}
	if cfg.Stream.IdleTimeoutSecs != 90 {
		t.Errorf("default IdleTimeoutSecs = %d, want 90", cfg.Stream.IdleTimeoutSecs)
	}
	if !cfg.UI.RenderMarkdown {
		t.Error("default RenderMarkdown should be true")
	}
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got error: %v", err)
	}
	if cfg.Server.BaseURL != Default().Server.BaseURL {
		t.Errorf("BaseURL = %q, want default", cfg.Server.BaseURL)
	}
}

func TestLoadFrom_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
base_url = "https://assistant.internal:8443"
request_timeout_secs = 10

[stream]
idle_timeout_secs = 45
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Server.BaseURL != "https://assistant.internal:8443" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Server.RequestTimeoutSecs != 10 {
		t.Errorf("RequestTimeoutSecs = %d, want 10", cfg.Server.RequestTimeoutSecs)
	}
	if cfg.Stream.IdleTimeoutSecs != 45 {
		t.Errorf("IdleTimeoutSecs = %d, want 45", cfg.Stream.IdleTimeoutSecs)
	}
	// Unset sections keep defaults
	if cfg.UI.TitleWidth != 32 {
		t.Errorf("TitleWidth = %d, want default 32", cfg.UI.TitleWidth)
	}
}

func TestLoadFrom_EnvOverride(t *testing.T) {
	t.Setenv("DENALI_BASE_URL", "http://10.0.0.5:8000")
	t.Setenv("DENALI_IDLE_TIMEOUT_SECS", "120")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Server.BaseURL != "http://10.0.0.5:8000" {
		t.Errorf("BaseURL = %q, env override not applied", cfg.Server.BaseURL)
	}
	if cfg.Stream.IdleTimeoutSecs != 120 {
		t.Errorf("IdleTimeoutSecs = %d, want 120", cfg.Stream.IdleTimeoutSecs)
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"http", "http://localhost:8000", false},
		{"https", "https://assistant.example.com", false},
		{"no scheme", "localhost:8000", true},
		{"bad scheme", "ftp://host", true},
		{"empty", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.BaseURL = tc.baseURL
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_ClampsValues(t *testing.T) {
	cfg := Default()
	cfg.Server.RequestTimeoutSecs = -5
	cfg.Stream.IdleTimeoutSecs = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Server.RequestTimeoutSecs != 30 {
		t.Errorf("RequestTimeoutSecs = %d, want clamped 30", cfg.Server.RequestTimeoutSecs)
	}
	if cfg.Stream.IdleTimeoutSecs != 90 {
		t.Errorf("IdleTimeoutSecs = %d, want clamped 90", cfg.Stream.IdleTimeoutSecs)
	}
}
