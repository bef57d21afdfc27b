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

// UpsertItems inserts or updates catalog rows by id. The operation is
// idempotent; re-running with identical data leaves rows unchanged.
func (db *DB) UpsertItems(ctx context.Context, items []models.Item) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("upsert", "library_item", start, err) }()

	if len(items) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin item upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO library_item (id, item_type, name, added_at, video_codec, video_height)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			item_type    = excluded.item_type,
			name         = excluded.name,
			added_at     = excluded.added_at,
			video_codec  = excluded.video_codec,
			video_height = excluded.video_height`)
	if err != nil {
		return fmt.Errorf("prepare item upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.Type, it.Name, it.AddedAt, it.VideoCodec, it.VideoHeight); err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit item upsert: %w", err)
	}
	return nil
}

// WipeCatalog removes every catalog row. Used by the full refresh before a
// clean re-import.
func (db *DB) WipeCatalog(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("delete", "library_item", start, err) }()

	if _, err := db.conn.ExecContext(ctx, `DELETE FROM library_item`); err != nil {
		return fmt.Errorf("wipe catalog: %w", err)
	}
	return nil
}

// CountItems returns the number of catalog rows.
func (db *DB) CountItems(ctx context.Context) (count int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "library_item", start, err) }()

	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM library_item`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// GetItem returns one catalog row, or nil when the id is unknown.
func (db *DB) GetItem(ctx context.Context, id string) (item *models.Item, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "library_item", start, err) }()

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, item_type, name, added_at, video_codec, video_height
		 FROM library_item WHERE id = ?`, id)

	var it models.Item
	err = row.Scan(&it.ID, &it.Type, &it.Name, &it.AddedAt, &it.VideoCodec, &it.VideoHeight)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &it, nil
}

// ItemNames returns a name lookup for the given item ids. Unknown ids are
// simply absent from the result.
func (db *DB) ItemNames(ctx context.Context, ids []string) (names map[string]string, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "library_item", start, err) }()

	names = make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	query, args := inClause(`SELECT id, name FROM library_item WHERE id IN (%s)`, ids)
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("item names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan item name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("item names rows: %w", err)
	}
	return names, nil
}
