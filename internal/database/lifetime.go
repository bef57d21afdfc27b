// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// ReplaceLifetimeWatch swaps the entire lifetime_watch table for the given
// entries in one transaction. The backfill recomputes every user from
// upstream, so a wholesale replace is simpler and safer than diffing.
func (db *DB) ReplaceLifetimeWatch(ctx context.Context, entries []models.LifetimeWatch) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("replace", "lifetime_watch", start, err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lifetime replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM lifetime_watch`); err != nil {
		return fmt.Errorf("clear lifetime_watch: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO lifetime_watch (user_id, total_ms, computed_at, updated_at)
			 VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare lifetime insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.UserID, e.TotalMs, e.ComputedAt, e.UpdatedAt); err != nil {
				return fmt.Errorf("insert lifetime for user %s: %w", e.UserID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lifetime replace: %w", err)
	}
	return nil
}

// LifetimeEntry is a lifetime total joined with the user's display name.
type LifetimeEntry struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	TotalMs int64  `json:"total_ms"`
}

// TopLifetimeWatch returns the highest lifetime totals joined with user
// names, ordered descending. Users pruned from the directory since the
// last backfill are skipped by the join.
func (db *DB) TopLifetimeWatch(ctx context.Context, limit int) (entries []LifetimeEntry, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "lifetime_watch", start, err) }()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT lw.user_id, u.name, lw.total_ms
		 FROM lifetime_watch lw
		 JOIN emby_user u ON u.id = lw.user_id
		 ORDER BY lw.total_ms DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top lifetime watch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e LifetimeEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.TotalMs); err != nil {
			return nil, fmt.Errorf("scan lifetime entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top lifetime rows: %w", err)
	}
	return entries, nil
}
