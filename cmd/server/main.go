// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

// Package main is the entry point for the Playtally server.
//
// Playtally polls an Emby server's live sessions, reconstructs
// conservative watch-time from position samples, and serves analytics
// over HTTP plus a live now-playing feed over WebSocket.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config file,
//     environment variables)
//  2. Logging: zerolog, configured from the loaded settings
//  3. Database: embedded DuckDB holding the observation ledger, the
//     user directory and the catalog mirror
//  4. Emby client: rate-limited HTTP client, optionally wrapped in a
//     circuit breaker
//  5. Supervisor tree: broadcast hub, session collector, job scheduler
//     and HTTP server as supervised services
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml or
// CONFIG_PATH), built-in defaults. The only required settings are the
// Emby server URL and API key:
//
//	export EMBY_URL=http://emby:8096
//	export EMBY_API_KEY=your-api-key
//	./playtally
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the collector finishes or discards
// its current tick as a whole, and the database is checkpointed and
// closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playtally/playtally/internal/api"
	"github.com/playtally/playtally/internal/broadcaster"
	"github.com/playtally/playtally/internal/collector"
	"github.com/playtally/playtally/internal/config"
	"github.com/playtally/playtally/internal/database"
	"github.com/playtally/playtally/internal/emby"
	"github.com/playtally/playtally/internal/jobs"
	"github.com/playtally/playtally/internal/logging"
	"github.com/playtally/playtally/internal/supervisor"
	"github.com/playtally/playtally/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("emby_url", cfg.Emby.URL).
		Str("db_path", cfg.Database.Path).
		Dur("poll_interval", cfg.Poller.Interval).
		Msg("Starting Playtally")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	clientCfg := emby.ClientConfig{
		BaseURL:   cfg.Emby.URL,
		APIKey:    cfg.Emby.APIKey,
		Timeout:   cfg.Emby.Timeout,
		RateLimit: cfg.Emby.RateLimit,
	}
	var client emby.API
	if cfg.Emby.BreakerEnabled {
		client = emby.NewCircuitBreakerClient(clientCfg)
		logging.Info().Msg("Emby circuit breaker enabled")
	} else {
		client = emby.NewClient(clientCfg)
	}
	if err := client.Ping(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Failed to reach Emby (collector will retry)")
	} else {
		logging.Info().Msg("Connected to Emby")
	}

	hub := broadcaster.NewHub(cfg.Broadcast.QueueCapacity)
	coll := collector.New(client, db, hub, collector.Config{
		Interval: cfg.Poller.Interval,
	})

	directory := jobs.NewDirectory(client, db)
	catalog := jobs.NewCatalog(client, db, cfg.Sync.CatalogPageSize)
	backfill := jobs.NewBackfill(client, db, cfg.Sync.CatalogPageSize)
	scheduler := jobs.NewScheduler(directory, backfill, jobs.SchedulerConfig{
		UsersInterval:     cfg.Sync.UsersInterval,
		BackfillOnStartup: cfg.Sync.BackfillOnStartup,
	})

	handler := api.NewHandler(api.HandlerConfig{
		Store:        db,
		Catalog:      catalog,
		Backfill:     backfill,
		Directory:    directory,
		WebSocket:    broadcaster.NewWSHandler(hub, cfg.Broadcast.KeepAlive),
		PerTickCapMs: cfg.Watchtime.PerTickCapMs,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// No WriteTimeout: /ws/now holds its connection open.
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	treeCfg := supervisor.DefaultTreeConfig()
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	tree.AddDataService(services.NewCheckpointService(db, 5*time.Minute))
	tree.AddMessagingService(services.NewServeFunc("broadcast-hub", hub.Serve))
	tree.AddMessagingService(services.NewServeFunc("session-collector", coll.Serve))
	tree.AddMessagingService(services.NewServeFunc("job-scheduler", scheduler.Serve))
	tree.AddAPIService(services.NewHTTPServerService(server, addr, treeCfg.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Playtally stopped")
}
