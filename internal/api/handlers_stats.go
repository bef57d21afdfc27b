// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
handlers_stats.go - Read-only stats endpoints

All stats queries are reconstructive reads over the observation ledger
or the catalog mirror. Empty or partially synced data yields empty or
zero-filled results, never an error response.
*/

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/playtally/playtally/internal/database"
	"github.com/playtally/playtally/internal/watchtime"
)

const (
	defaultUsageDays = watchtime.DefaultUsageDays
	maxUsageDays     = 365
	defaultTopLimit  = 10
	maxTopLimit      = 100
)

// TopUserRow is one row of the top-users response.
type TopUserRow struct {
	UserID  string  `json:"user_id"`
	Name    string  `json:"name"`
	TotalMs int64   `json:"total_ms"`
	Hours   float64 `json:"hours"`
}

// TopItemRow is one row of the top-items response.
type TopItemRow struct {
	ItemID  string  `json:"item_id"`
	Name    string  `json:"name"`
	TotalMs int64   `json:"total_ms"`
	Hours   float64 `json:"hours"`
}

// ActiveUserRow is one row of the lifetime active-users response.
type ActiveUserRow struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	TotalMs int64  `json:"total_ms"`
	Watched string `json:"watched"` // e.g. "12d 5h 42m"
}

// StatsOverview handles GET /api/v1/stats/overview.
func (h *Handler) StatsOverview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	overview, err := h.store.GetOverview(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(overview)
}

// StatsUsage handles GET /api/v1/stats/usage?days=N. It returns the
// daily watch-hours series per user for the last N days.
func (h *Handler) StatsUsage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	days := intParam(r, "days", defaultUsageDays, 1, maxUsageDays)
	rows, err := watchtime.Usage(r.Context(), h.store, h.capMs, days, h.now())
	if err != nil {
		rw.InternalError(err)
		return
	}
	if rows == nil {
		rows = []watchtime.UsageRow{}
	}
	rw.Success(map[string]interface{}{
		"days":  days,
		"usage": rows,
	})
}

// StatsTopUsers handles GET /api/v1/stats/top/users?window=&limit=.
func (h *Handler) StatsTopUsers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	window := r.URL.Query().Get("window")
	limit := intParam(r, "limit", defaultTopLimit, 1, maxTopLimit)

	totals, err := watchtime.TopUsers(r.Context(), h.store, h.capMs, window, limit, h.now())
	if err != nil {
		rw.InternalError(err)
		return
	}

	names := h.userNames(r)
	rows := make([]TopUserRow, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, TopUserRow{
			UserID:  t.ID,
			Name:    names[t.ID],
			TotalMs: t.TotalMs,
			Hours:   msToHours(t.TotalMs),
		})
	}
	rw.Success(map[string]interface{}{
		"window": windowLabel(window),
		"users":  rows,
	})
}

// StatsTopItems handles GET /api/v1/stats/top/items?window=&limit=.
func (h *Handler) StatsTopItems(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	window := r.URL.Query().Get("window")
	limit := intParam(r, "limit", defaultTopLimit, 1, maxTopLimit)

	totals, err := watchtime.TopItems(r.Context(), h.store, h.capMs, window, limit, h.now())
	if err != nil {
		rw.InternalError(err)
		return
	}

	ids := make([]string, 0, len(totals))
	for _, t := range totals {
		ids = append(ids, t.ID)
	}
	names, err := h.store.ItemNames(r.Context(), ids)
	if err != nil {
		// Names are decoration; serve totals without them.
		names = map[string]string{}
	}

	rows := make([]TopItemRow, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, TopItemRow{
			ItemID:  t.ID,
			Name:    names[t.ID],
			TotalMs: t.TotalMs,
			Hours:   msToHours(t.TotalMs),
		})
	}
	rw.Success(map[string]interface{}{
		"window": windowLabel(window),
		"items":  rows,
	})
}

// StatsQualities handles GET /api/v1/stats/qualities. The response nests
// item-type counts under each resolution bucket; every bucket is present
// even when empty so charts stay stable.
func (h *Handler) StatsQualities(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	counts, err := h.store.GetQualityCounts(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}

	buckets := make(map[string]map[string]int, len(database.QualityBuckets))
	for _, q := range database.QualityBuckets {
		buckets[q] = map[string]int{}
	}
	for _, c := range counts {
		if buckets[c.Quality] == nil {
			buckets[c.Quality] = map[string]int{}
		}
		buckets[c.Quality][c.ItemType] += c.Count
	}
	rw.Success(map[string]interface{}{"qualities": buckets})
}

// StatsCodecs handles GET /api/v1/stats/codecs.
func (h *Handler) StatsCodecs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	counts, err := h.store.GetCodecCounts(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	if counts == nil {
		counts = []database.CodecCount{}
	}
	rw.Success(map[string]interface{}{"codecs": counts})
}

// StatsActiveUsers handles GET /api/v1/stats/active-users?limit=. It
// serves lifetime watch totals from the backfilled table, formatted in
// days, hours and minutes.
func (h *Handler) StatsActiveUsers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	limit := intParam(r, "limit", defaultTopLimit, 1, maxTopLimit)
	entries, err := h.store.TopLifetimeWatch(r.Context(), limit)
	if err != nil {
		rw.InternalError(err)
		return
	}

	rows := make([]ActiveUserRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ActiveUserRow{
			UserID:  e.UserID,
			Name:    e.Name,
			TotalMs: e.TotalMs,
			Watched: formatWatchTime(e.TotalMs),
		})
	}
	rw.Success(map[string]interface{}{"users": rows})
}

// userNames resolves user IDs to display names, best-effort.
func (h *Handler) userNames(r *http.Request) map[string]string {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		return map[string]string{}
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names
}

// intParam parses an integer query parameter, clamping to [min, max].
// Missing or unparsable values yield def.
func intParam(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// windowLabel normalizes the window string for echoing back to clients.
func windowLabel(window string) string {
	if _, bounded := watchtime.ParseWindow(window); !bounded {
		return "all"
	}
	if window == "" {
		return "30d"
	}
	return window
}

func msToHours(ms int64) float64 {
	return float64(ms) / float64(time.Hour.Milliseconds())
}

// formatWatchTime renders a millisecond total as "12d 5h 42m". Totals
// under one minute render as "0m".
func formatWatchTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	minutes := ms / time.Minute.Milliseconds()
	days := minutes / (24 * 60)
	hours := (minutes / 60) % 24
	mins := minutes % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
