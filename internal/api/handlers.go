// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
handlers.go - HTTP handler wiring

The handler depends on narrow interfaces rather than concrete types so
that tests can substitute in-memory fakes for the database and the jobs.
*/

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/playtally/playtally/internal/database"
	"github.com/playtally/playtally/internal/jobs"
	"github.com/playtally/playtally/internal/models"
)

// StatsStore is the read side of the database used by the stats
// endpoints. *database.DB satisfies it.
type StatsStore interface {
	GetOverview(ctx context.Context) (*database.Overview, error)
	GetQualityCounts(ctx context.Context) ([]database.QualityCount, error)
	GetCodecCounts(ctx context.Context) ([]database.CodecCount, error)
	TopLifetimeWatch(ctx context.Context, limit int) ([]database.LifetimeEntry, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ItemNames(ctx context.Context, ids []string) (map[string]string, error)
	ScanObservations(ctx context.Context, since *time.Time, fn func(models.Observation) error) error
}

// CatalogJob triggers and reports on catalog refreshes.
type CatalogJob interface {
	Refresh(ctx context.Context) jobs.Progress
	RefreshFull(ctx context.Context) jobs.Progress
	Status() jobs.Progress
}

// BackfillJob triggers and reports on the lifetime backfill.
type BackfillJob interface {
	Start(ctx context.Context) jobs.Progress
	Status() jobs.Progress
}

// DirectorySyncer runs the user directory sync.
type DirectorySyncer interface {
	Sync(ctx context.Context) (synced, pruned int, err error)
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store     StatsStore
	catalog   CatalogJob
	backfill  BackfillJob
	directory DirectorySyncer
	ws        http.Handler
	capMs     int64
	startedAt time.Time
	now       func() time.Time
}

// HandlerConfig configures a new Handler.
type HandlerConfig struct {
	Store     StatsStore
	Catalog   CatalogJob
	Backfill  BackfillJob
	Directory DirectorySyncer

	// WebSocket is the handler mounted at /ws/now.
	WebSocket http.Handler

	// PerTickCapMs bounds per-pair watch-time deltas during
	// reconstruction. Zero means the default cap.
	PerTickCapMs int64
}

// NewHandler creates the handler set.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		store:     cfg.Store,
		catalog:   cfg.Catalog,
		backfill:  cfg.Backfill,
		directory: cfg.Directory,
		ws:        cfg.WebSocket,
		capMs:     cfg.PerTickCapMs,
		startedAt: time.Now(),
		now:       time.Now,
	}
}
