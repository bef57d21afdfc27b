// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package services

import (
	"context"
	"time"

	"github.com/playtally/playtally/internal/logging"
)

// Checkpointer flushes the database WAL to the main file.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService periodically checkpoints the database so that a
// crash loses at most one interval of appended observations.
type CheckpointService struct {
	db       Checkpointer
	interval time.Duration
}

// NewCheckpointService wraps db. A zero interval defaults to 5 minutes.
func NewCheckpointService(db Checkpointer, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CheckpointService{db: db, interval: interval}
}

// Serve implements suture.Service.
func (s *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.db.Checkpoint(ctx); err != nil {
				logging.Warn().Err(err).Msg("database checkpoint failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *CheckpointService) String() string {
	return "db-checkpoint"
}
