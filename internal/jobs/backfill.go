// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
backfill.go - Lifetime Watch-Time Backfill

The ledger only covers history since this service started watching. For
all-time leaderboards the server's own play state is the better source:
for every user, every played movie and episode contributes its runtime
times its play count. The result replaces lifetime_watch wholesale; the
table is a derived cache of upstream state, not an incremental record.
*/

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

// BackfillStore is the database surface the backfill needs.
type BackfillStore interface {
	ReplaceLifetimeWatch(ctx context.Context, entries []models.LifetimeWatch) error
}

// Backfill recomputes lifetime totals from upstream play state.
type Backfill struct {
	client   emby.API
	store    BackfillStore
	pageSize int
	flight   singleFlight
	now      func() time.Time
}

// NewBackfill creates the backfill job. pageSize <= 0 uses DefaultPageSize.
func NewBackfill(client emby.API, store BackfillStore, pageSize int) *Backfill {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Backfill{client: client, store: store, pageSize: pageSize, now: time.Now}
}

// Status returns the current (or last finished) backfill progress.
func (b *Backfill) Status() Progress {
	return b.flight.snapshot()
}

// Start launches a backfill in the background, single-flight. A second
// start while running returns the in-flight progress.
func (b *Backfill) Start(ctx context.Context) Progress {
	if !b.flight.tryStart(b.now()) {
		return b.flight.snapshot()
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		err := b.run(bg)
		b.flight.finish(b.now(), err)
	}()

	return b.flight.snapshot()
}

// Run executes the backfill synchronously, single-flight. Used by the
// startup sequence; HTTP triggers go through Start.
func (b *Backfill) Run(ctx context.Context) error {
	if !b.flight.tryStart(b.now()) {
		return fmt.Errorf("backfill already running")
	}
	err := b.run(ctx)
	b.flight.finish(b.now(), err)
	return err
}

func (b *Backfill) run(ctx context.Context) (err error) {
	start := b.now()
	defer func() { metrics.ObserveSyncRun("backfill", start, err) }()

	logging.Info().Msg("lifetime backfill started")

	users, err := b.client.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("fetch users for backfill: %w", err)
	}

	computedAt := b.now().UTC()
	entries := make([]models.LifetimeWatch, 0, len(users))

	for i, u := range users {
		if u.ID == "" {
			continue
		}
		b.flight.update(func(p *Progress) { p.Page = i; p.Total = len(users) })

		var totalMs int64
		totalMs, err = b.userLifetimeMs(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("backfill user %s: %w", u.ID, err)
		}

		entries = append(entries, models.LifetimeWatch{
			UserID:     u.ID,
			TotalMs:    totalMs,
			ComputedAt: computedAt,
			UpdatedAt:  computedAt,
		})
		b.flight.update(func(p *Progress) { p.Imported = len(entries) })
	}

	if err = b.store.ReplaceLifetimeWatch(ctx, entries); err != nil {
		return fmt.Errorf("replace lifetime totals: %w", err)
	}

	logging.Info().Int("users", len(entries)).Msg("lifetime backfill finished")
	return nil
}

// userLifetimeMs sums runtime * playCount over every played movie and
// episode of one user, paging through the listing. A missing play count
// on a played item still counts once.
func (b *Backfill) userLifetimeMs(ctx context.Context, userID string) (int64, error) {
	var totalMs int64

	for startIndex := 0; ; startIndex += b.pageSize {
		page, err := b.client.GetUserPlayedItemsPage(ctx, userID, startIndex, b.pageSize)
		if err != nil {
			return 0, fmt.Errorf("fetch played items at %d: %w", startIndex, err)
		}
		if len(page.Items) == 0 {
			break
		}

		for i := range page.Items {
			it := &page.Items[i]
			if it.RunTimeTicks <= 0 {
				continue
			}
			plays := 1
			if it.UserData != nil && it.UserData.PlayCount > plays {
				plays = it.UserData.PlayCount
			}
			totalMs += models.TicksToMs(it.RunTimeTicks) * int64(plays)
		}

		if startIndex+b.pageSize >= page.TotalRecordCount && page.TotalRecordCount > 0 {
			break
		}
	}

	return totalMs, nil
}
