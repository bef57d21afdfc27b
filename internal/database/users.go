// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// UpsertUsers inserts or updates directory entries by id.
func (db *DB) UpsertUsers(ctx context.Context, users []models.User) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("upsert", "emby_user", start, err) }()

	if len(users) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin user upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO emby_user (id, name) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`)
	if err != nil {
		return fmt.Errorf("prepare user upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.ID, u.Name); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user upsert: %w", err)
	}
	return nil
}

// DeleteUsersNotIn removes local users absent from the given id set. An
// empty set clears the entire directory.
func (db *DB) DeleteUsersNotIn(ctx context.Context, ids []string) (deleted int64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("delete", "emby_user", start, err) }()

	var res interface {
		RowsAffected() (int64, error)
	}

	if len(ids) == 0 {
		res, err = db.conn.ExecContext(ctx, `DELETE FROM emby_user`)
	} else {
		placeholders := strings.Repeat("?,", len(ids))
		placeholders = placeholders[:len(placeholders)-1]
		args := make([]interface{}, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		query := fmt.Sprintf(`DELETE FROM emby_user WHERE id NOT IN (%s)`, placeholders)
		res, err = db.conn.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return 0, fmt.Errorf("prune users: %w", err)
	}

	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune users rows affected: %w", err)
	}
	return deleted, nil
}

// ListUsers returns the full local directory ordered by name.
func (db *DB) ListUsers(ctx context.Context) (users []models.User, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "emby_user", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM emby_user ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users rows: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of local directory entries.
func (db *DB) CountUsers(ctx context.Context) (count int, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "emby_user", start, err) }()

	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM emby_user`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// UserIDSet returns the set of known user ids. The collector consults it to
// reject samples from users that have not been synced yet.
func (db *DB) UserIDSet(ctx context.Context) (set map[string]struct{}, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "emby_user", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM emby_user`)
	if err != nil {
		return nil, fmt.Errorf("user id set: %w", err)
	}
	defer func() { _ = rows.Close() }()

	set = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		set[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user id set rows: %w", err)
	}
	return set, nil
}
