// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/playtally/playtally/internal/emby"
	"github.com/playtally/playtally/internal/logging"
	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// DirectoryStore is the database surface the directory sync needs.
type DirectoryStore interface {
	UpsertUsers(ctx context.Context, users []models.User) error
	DeleteUsersNotIn(ctx context.Context, ids []string) (int64, error)
}

// Directory mirrors the upstream user list into the local directory.
type Directory struct {
	client emby.API
	store  DirectoryStore
}

// NewDirectory creates the directory sync job.
func NewDirectory(client emby.API, store DirectoryStore) *Directory {
	return &Directory{client: client, store: store}
}

// Sync fetches the full upstream user list, upserts it and prunes local
// users no longer present upstream. An empty upstream list clears the
// entire local directory; deliberate, but loud in the logs because a
// misconfigured upstream produces the same response.
func (d *Directory) Sync(ctx context.Context) (synced, pruned int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSyncRun("users", start, err) }()

	upstream, err := d.client.GetUsers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch users: %w", err)
	}

	if len(upstream) == 0 {
		logging.Warn().Msg("upstream returned zero users, clearing local directory")
	}

	users := make([]models.User, 0, len(upstream))
	ids := make([]string, 0, len(upstream))
	for _, u := range upstream {
		if u.ID == "" {
			continue
		}
		users = append(users, models.User{ID: u.ID, Name: u.Name})
		ids = append(ids, u.ID)
	}

	if err := d.store.UpsertUsers(ctx, users); err != nil {
		return 0, 0, fmt.Errorf("upsert users: %w", err)
	}

	deleted, err := d.store.DeleteUsersNotIn(ctx, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("prune users: %w", err)
	}

	logging.Info().Int("synced", len(users)).Int64("pruned", deleted).Msg("user directory synced")
	return len(users), int(deleted), nil
}
