// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/playtally/config.yaml",
	"/etc/playtally/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Emby: EmbyConfig{
			URL:            "",
			APIKey:         "",
			Timeout:        30 * time.Second,
			RateLimit:      10,
			BreakerEnabled: true,
		},
		Poller: PollerConfig{
			Interval: 2 * time.Second,
		},
		Watchtime: WatchtimeConfig{
			PerTickCapMs: 5000,
		},
		Broadcast: BroadcastConfig{
			QueueCapacity: 10,
			KeepAlive:     15 * time.Second,
		},
		Sync: SyncConfig{
			UsersInterval:     24 * time.Hour,
			CatalogPageSize:   200,
			BackfillOnStartup: true,
		},
		Database: DatabaseConfig{
			Path:      "/data/playtally.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8077,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - EMBY_URL -> emby.url
//   - EMBY_API_KEY -> emby.api_key
//   - POLL_INTERVAL -> poller.interval
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Emby upstream
		"emby_url":             "emby.url",
		"emby_api_key":         "emby.api_key",
		"emby_timeout":         "emby.timeout",
		"emby_rate_limit":      "emby.rate_limit",
		"emby_breaker_enabled": "emby.breaker_enabled",

		// Poller and reconstruction
		"poll_interval":   "poller.interval",
		"per_tick_cap_ms": "watchtime.per_tick_cap_ms",

		// Broadcast
		"broadcast_queue_capacity": "broadcast.queue_capacity",
		"keepalive_interval":       "broadcast.keepalive",

		// Sync jobs
		"users_sync_interval":  "sync.users_interval",
		"catalog_page_size":    "sync.catalog_page_size",
		"backfill_on_startup":  "sync.backfill_on_startup",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored rather than mapped by convention; this
	// keeps unrelated environment noise out of the config tree.
	return ""
}
