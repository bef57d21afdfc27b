// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
observations.go - Observation Ledger

The play_event table is append-only. AppendObservations is the single
write path; the collector calls it once per poll tick with that tick's
accepted samples. There is no update or delete path, which is what makes
the watch-time reconstruction repeatable.
*/

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// AppendObservations writes one tick's accepted samples in a single
// transaction. Either every observation lands or none do.
func (db *DB) AppendObservations(ctx context.Context, obs []models.Observation) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("insert", "play_event", start, err) }()

	if len(obs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin observation append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO play_event (id, user_id, item_id, event_ts, event_type, position_ms, transcode)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare observation append: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range obs {
		o := &obs[i]
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		if _, err := stmt.ExecContext(ctx, o.ID, o.UserID, o.ItemID, o.Timestamp, o.EventType, o.PositionMs, o.Transcode); err != nil {
			return fmt.Errorf("append observation for user %s item %s: %w", o.UserID, o.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observation append: %w", err)
	}
	return nil
}

// ScanObservations streams ledger rows to fn ordered by
// (user_id, item_id, event_ts, id). The ordering groups each (user, item)
// partition contiguously so the reconstructor can pair consecutive samples
// without buffering the whole ledger. A non-nil since bounds the scan to
// rows at or after that instant.
//
// fn returning an error aborts the scan and propagates the error.
func (db *DB) ScanObservations(ctx context.Context, since *time.Time, fn func(models.Observation) error) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("scan", "play_event", start, err) }()

	query := `SELECT id, user_id, item_id, event_ts, event_type, position_ms, transcode
		FROM play_event`
	var args []interface{}
	if since != nil {
		query += ` WHERE event_ts >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY user_id, item_id, event_ts, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("scan observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.ID, &o.UserID, &o.ItemID, &o.Timestamp, &o.EventType, &o.PositionMs, &o.Transcode); err != nil {
			return fmt.Errorf("scan observation row: %w", err)
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan observations rows: %w", err)
	}
	return nil
}

// CountObservations returns the ledger row count.
func (db *DB) CountObservations(ctx context.Context) (count int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "play_event", start, err) }()

	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM play_event`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count observations: %w", err)
	}
	return count, nil
}
