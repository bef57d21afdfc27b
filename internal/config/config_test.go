// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package config

import (
	"testing"
	"time"
)

// validConfig returns a config that passes validation; tests mutate one
// field at a time.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Emby.URL = "http://emby:8096"
	cfg.Emby.APIKey = "test-key"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Poller.Interval != 2*time.Second {
		t.Errorf("default poll interval = %s, want 2s", cfg.Poller.Interval)
	}
	if cfg.Watchtime.PerTickCapMs != 5000 {
		t.Errorf("default per-tick cap = %d, want 5000", cfg.Watchtime.PerTickCapMs)
	}
	if cfg.Broadcast.QueueCapacity != 10 {
		t.Errorf("default queue capacity = %d, want 10", cfg.Broadcast.QueueCapacity)
	}
	if cfg.Broadcast.KeepAlive != 15*time.Second {
		t.Errorf("default keepalive = %s, want 15s", cfg.Broadcast.KeepAlive)
	}
	if cfg.Sync.UsersInterval != 24*time.Hour {
		t.Errorf("default users interval = %s, want 24h", cfg.Sync.UsersInterval)
	}
	if cfg.Sync.CatalogPageSize != 200 {
		t.Errorf("default catalog page size = %d, want 200", cfg.Sync.CatalogPageSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing url", func(c *Config) { c.Emby.URL = "" }, true},
		{"bad url scheme", func(c *Config) { c.Emby.URL = "ftp://emby" }, true},
		{"missing api key", func(c *Config) { c.Emby.APIKey = "" }, true},
		{"zero poll interval", func(c *Config) { c.Poller.Interval = 0 }, true},
		{"negative cap", func(c *Config) { c.Watchtime.PerTickCapMs = -1 }, true},
		{"zero queue capacity", func(c *Config) { c.Broadcast.QueueCapacity = 0 }, true},
		{"zero page size", func(c *Config) { c.Sync.CatalogPageSize = 0 }, true},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EMBY_URL", "http://emby.local:8096")
	t.Setenv("EMBY_API_KEY", "secret")
	t.Setenv("POLL_INTERVAL", "5s")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DUCKDB_PATH", t.TempDir()+"/test.duckdb")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Emby.URL != "http://emby.local:8096" {
		t.Errorf("emby url = %q", cfg.Emby.URL)
	}
	if cfg.Poller.Interval != 5*time.Second {
		t.Errorf("poll interval = %s, want 5s", cfg.Poller.Interval)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EMBY_URL", "emby.url"},
		{"EMBY_API_KEY", "emby.api_key"},
		{"POLL_INTERVAL", "poller.interval"},
		{"DUCKDB_PATH", "database.path"},
		{"LOG_LEVEL", "logging.level"},
		{"UNRELATED_VAR", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
