// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
aggregator.go - Partition-Aware Reduction

Every watch-time aggregate (daily series, top users, top items) consumes
the same delta stream: one Accumulator walks the ledger in partition
order, pairs consecutive samples and fans each delta out to the attached
buckets. There is exactly one clamp implementation; the buckets only
decide how to key the totals.
*/

package watchtime

import (
	"context"
	"sort"
	"time"

	"github.com/playtally/playtally/internal/models"
)

// Ledger is the read surface the aggregates need from the database.
type Ledger interface {
	ScanObservations(ctx context.Context, since *time.Time, fn func(models.Observation) error) error
}

// Bucket receives one delta per consecutive sample pair. The delta is
// attributed to the later sample of the pair.
type Bucket interface {
	Add(o *models.Observation, deltaMs int64)
}

// Accumulator pairs consecutive samples within a (user, item) partition
// and fans the clamped deltas out to its buckets. Samples must arrive in
// (user_id, item_id, event_ts, id) order, which is exactly what
// ScanObservations yields.
type Accumulator struct {
	capMs    int64
	buckets  []Bucket
	prev     models.Observation
	havePrev bool
}

// NewAccumulator creates an accumulator feeding the given buckets.
// capMs <= 0 uses DefaultPerTickCapMs.
func NewAccumulator(capMs int64, buckets ...Bucket) *Accumulator {
	return &Accumulator{capMs: capMs, buckets: buckets}
}

// Observe consumes the next sample in scan order.
func (a *Accumulator) Observe(o models.Observation) {
	if a.havePrev && a.prev.UserID == o.UserID && a.prev.ItemID == o.ItemID {
		if d := PairDelta(&a.prev, &o, a.capMs); d > 0 {
			for _, b := range a.buckets {
				b.Add(&o, d)
			}
		}
	}
	a.prev = o
	a.havePrev = true
}

// Reduce runs the accumulator over a ledger scan starting at since.
func Reduce(ctx context.Context, ledger Ledger, since *time.Time, capMs int64, buckets ...Bucket) error {
	acc := NewAccumulator(capMs, buckets...)
	return ledger.ScanObservations(ctx, since, func(o models.Observation) error {
		acc.Observe(o)
		return nil
	})
}

// ---------------------------------------------------------------------------
// Buckets
// ---------------------------------------------------------------------------

// UsageRow is one (day, user) cell of the daily usage series.
type UsageRow struct {
	Day    string  `json:"day"` // YYYY-MM-DD, UTC
	UserID string  `json:"user_id"`
	Hours  float64 `json:"hours"`
}

// DailyUserBucket keys deltas by (UTC day, user).
type DailyUserBucket struct {
	totals map[dayUserKey]int64
}

type dayUserKey struct {
	day    string
	userID string
}

func NewDailyUserBucket() *DailyUserBucket {
	return &DailyUserBucket{totals: make(map[dayUserKey]int64)}
}

func (b *DailyUserBucket) Add(o *models.Observation, deltaMs int64) {
	k := dayUserKey{day: o.Timestamp.UTC().Format("2006-01-02"), userID: o.UserID}
	b.totals[k] += deltaMs
}

// Rows returns the series sorted by day then user id.
func (b *DailyUserBucket) Rows() []UsageRow {
	rows := make([]UsageRow, 0, len(b.totals))
	for k, ms := range b.totals {
		rows = append(rows, UsageRow{
			Day:    k.day,
			UserID: k.userID,
			Hours:  float64(ms) / float64(time.Hour.Milliseconds()),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Day != rows[j].Day {
			return rows[i].Day < rows[j].Day
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

// Total is an aggregate keyed by user or item id.
type Total struct {
	ID      string `json:"id"`
	TotalMs int64  `json:"total_ms"`
}

// TotalsBucket accumulates per-key totals; the key function decides
// whether that key is the user or the item.
type TotalsBucket struct {
	key    func(*models.Observation) string
	totals map[string]int64
}

func NewUserTotalsBucket() *TotalsBucket {
	return &TotalsBucket{
		key:    func(o *models.Observation) string { return o.UserID },
		totals: make(map[string]int64),
	}
}

func NewItemTotalsBucket() *TotalsBucket {
	return &TotalsBucket{
		key:    func(o *models.Observation) string { return o.ItemID },
		totals: make(map[string]int64),
	}
}

func (b *TotalsBucket) Add(o *models.Observation, deltaMs int64) {
	b.totals[b.key(o)] += deltaMs
}

// Top returns up to limit totals ordered descending, ties broken by id so
// results are stable across runs.
func (b *TotalsBucket) Top(limit int) []Total {
	totals := make([]Total, 0, len(b.totals))
	for id, ms := range b.totals {
		totals = append(totals, Total{ID: id, TotalMs: ms})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].TotalMs != totals[j].TotalMs {
			return totals[i].TotalMs > totals[j].TotalMs
		}
		return totals[i].ID < totals[j].ID
	})
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals
}

// ---------------------------------------------------------------------------
// Aggregate entry points
// ---------------------------------------------------------------------------

// DefaultUsageDays is the daily-series span when no span is requested.
const DefaultUsageDays = 30

// Usage reconstructs the daily watch-hours series for the last given
// number of days. days <= 0 defaults to DefaultUsageDays.
func Usage(ctx context.Context, ledger Ledger, capMs int64, days int, now time.Time) ([]UsageRow, error) {
	if days <= 0 {
		days = DefaultUsageDays
	}
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)

	bucket := NewDailyUserBucket()
	if err := Reduce(ctx, ledger, &cutoff, capMs, bucket); err != nil {
		return nil, err
	}
	return bucket.Rows(), nil
}

// TopUsers reconstructs per-user totals within a window string.
func TopUsers(ctx context.Context, ledger Ledger, capMs int64, window string, limit int, now time.Time) ([]Total, error) {
	bucket := NewUserTotalsBucket()
	if err := Reduce(ctx, ledger, WindowCutoff(window, now), capMs, bucket); err != nil {
		return nil, err
	}
	return bucket.Top(limit), nil
}

// TopItems reconstructs per-item totals within a window string.
func TopItems(ctx context.Context, ledger Ledger, capMs int64, window string, limit int, now time.Time) ([]Total, error) {
	bucket := NewItemTotalsBucket()
	if err := Reduce(ctx, ledger, WindowCutoff(window, now), capMs, bucket); err != nil {
		return nil, err
	}
	return bucket.Top(limit), nil
}
