// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
schema.go - Database Schema Management

Tables:
  - emby_user: mirror of the upstream Emby user directory
  - library_item: catalog snapshot with quality metadata per item
  - play_event: the append-only observation ledger, one row per accepted
    position sample
  - lifetime_watch: server-reported all-time totals per user, replaced
    wholesale by the backfill job

Schema Strategy:
All columns are defined in the initial CREATE TABLE statements. The ledger
is the source of truth for watch time; the other tables are rebuildable
from upstream at any point.

Index Strategy:
The reconstruction scan orders by (user_id, item_id, event_ts, id), so the
ledger carries a composite index matching that ordering plus a timestamp
index for window cutoffs.
*/

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS emby_user (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS library_item (
			id           TEXT PRIMARY KEY,
			item_type    TEXT NOT NULL,
			name         TEXT NOT NULL,
			added_at     TIMESTAMP,
			video_codec  TEXT,
			video_height INTEGER
		)`,

		// Append-only observation ledger. Rows are never updated or
		// deleted by the core pipeline.
		`CREATE TABLE IF NOT EXISTS play_event (
			id          UUID PRIMARY KEY,
			user_id     TEXT NOT NULL,
			item_id     TEXT NOT NULL,
			event_ts    TIMESTAMP NOT NULL,
			event_type  TEXT NOT NULL,
			position_ms BIGINT NOT NULL,
			transcode   BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS lifetime_watch (
			user_id     TEXT PRIMARY KEY,
			total_ms    BIGINT NOT NULL,
			computed_at TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// createIndexes creates supporting indexes
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		// Matches the reconstruction scan ordering
		`CREATE INDEX IF NOT EXISTS idx_play_event_partition
			ON play_event (user_id, item_id, event_ts, id)`,

		// Window cutoff filtering
		`CREATE INDEX IF NOT EXISTS idx_play_event_ts
			ON play_event (event_ts)`,

		`CREATE INDEX IF NOT EXISTS idx_library_item_type
			ON library_item (item_type)`,
	}

	for _, idx := range indexes {
		if _, err := db.conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", idx, err)
		}
	}

	return nil
}
