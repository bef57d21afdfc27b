// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

// Package config loads and validates Playtally configuration.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables > config file > built-in defaults.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the Playtally server.
type Config struct {
	Emby      EmbyConfig      `koanf:"emby"`
	Poller    PollerConfig    `koanf:"poller"`
	Watchtime WatchtimeConfig `koanf:"watchtime"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Sync      SyncConfig      `koanf:"sync"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// EmbyConfig holds connection settings for the upstream Emby server.
type EmbyConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the maximum upstream requests per second. Zero disables
	// client-side rate limiting.
	RateLimit float64 `koanf:"rate_limit"`

	// BreakerEnabled wraps the client in a circuit breaker so a flapping
	// server fails fast instead of burning the request timeout every tick.
	BreakerEnabled bool `koanf:"breaker_enabled"`
}

// PollerConfig controls the session poller.
type PollerConfig struct {
	// Interval between session polls. Default: 2s.
	Interval time.Duration `koanf:"interval"`
}

// WatchtimeConfig controls the watch-time reconstruction algorithm.
type WatchtimeConfig struct {
	// PerTickCapMs bounds how much watched time a single poll interval may
	// contribute, regardless of how far the reported position jumped.
	// Default: 5000.
	PerTickCapMs int64 `koanf:"per_tick_cap_ms"`
}

// BroadcastConfig controls the live now-playing publisher.
type BroadcastConfig struct {
	// QueueCapacity is the per-subscriber snapshot buffer. A subscriber
	// whose buffer is full misses snapshots rather than blocking the poller.
	// Default: 10.
	QueueCapacity int `koanf:"queue_capacity"`

	// KeepAlive is the idle interval after which a subscriber transport
	// emits a heartbeat. Default: 15s.
	KeepAlive time.Duration `koanf:"keepalive"`
}

// SyncConfig controls the reference-data sync jobs.
type SyncConfig struct {
	// UsersInterval is the period of the directory sync loop. Default: 24h.
	UsersInterval time.Duration `koanf:"users_interval"`

	// CatalogPageSize is the page size for paginated catalog imports.
	// Default: 200.
	CatalogPageSize int `koanf:"catalog_page_size"`

	// BackfillOnStartup seeds lifetime totals from upstream history when the
	// process starts. Default: true.
	BackfillOnStartup bool `koanf:"backfill_on_startup"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads for DuckDB; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would prevent startup.
func (c *Config) Validate() error {
	if c.Emby.URL == "" {
		return fmt.Errorf("emby.url is required")
	}
	if u, err := url.Parse(c.Emby.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("emby.url must be an http(s) URL, got %q", c.Emby.URL)
	}
	if c.Emby.APIKey == "" {
		return fmt.Errorf("emby.api_key is required")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive, got %s", c.Poller.Interval)
	}
	if c.Watchtime.PerTickCapMs <= 0 {
		return fmt.Errorf("watchtime.per_tick_cap_ms must be positive, got %d", c.Watchtime.PerTickCapMs)
	}
	if c.Broadcast.QueueCapacity <= 0 {
		return fmt.Errorf("broadcast.queue_capacity must be positive, got %d", c.Broadcast.QueueCapacity)
	}
	if c.Sync.CatalogPageSize <= 0 {
		return fmt.Errorf("sync.catalog_page_size must be positive, got %d", c.Sync.CatalogPageSize)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	return nil
}

// Addr returns the host:port string for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
