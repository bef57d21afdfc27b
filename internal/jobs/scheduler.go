// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package jobs

import (
	"context"
	"time"

	"github.com/playtally/playtally/internal/logging"
)

// DefaultUsersInterval is the periodic directory sync cadence.
const DefaultUsersInterval = 24 * time.Hour

// SchedulerConfig holds the periodic job settings.
type SchedulerConfig struct {
	UsersInterval     time.Duration
	BackfillOnStartup bool
}

// Scheduler runs the periodic directory sync and the startup seeding
// sequence. It is a suture service; catalog and backfill stay on-demand
// single-flight jobs and are only touched here at startup.
type Scheduler struct {
	directory *Directory
	backfill  *Backfill
	cfg       SchedulerConfig
}

// NewScheduler creates the scheduler.
func NewScheduler(directory *Directory, backfill *Backfill, cfg SchedulerConfig) *Scheduler {
	if cfg.UsersInterval <= 0 {
		cfg.UsersInterval = DefaultUsersInterval
	}
	return &Scheduler{directory: directory, backfill: backfill, cfg: cfg}
}

// Serve runs the startup seeding then the periodic loop until the
// context is canceled. Designed for suture supervision.
//
// Startup order matters: the collector rejects samples from unknown
// users, so the directory is seeded before anything else. The backfill
// follows because it reads the same upstream user list.
func (s *Scheduler) Serve(ctx context.Context) error {
	if _, _, err := s.directory.Sync(ctx); err != nil {
		// Non-fatal: the periodic loop retries. The collector simply
		// ledgers nothing until a sync lands.
		logging.Error().Err(err).Msg("startup user sync failed")
	}

	if s.cfg.BackfillOnStartup {
		if err := s.backfill.Run(ctx); err != nil {
			logging.Error().Err(err).Msg("startup backfill failed")
		}
	}

	ticker := time.NewTicker(s.cfg.UsersInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "scheduler").Msg("job scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, _, err := s.directory.Sync(ctx); err != nil {
				logging.Error().Err(err).Msg("periodic user sync failed")
			}
		}
	}
}
