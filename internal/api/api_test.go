// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/playtally/playtally/internal/database"
	"github.com/playtally/playtally/internal/jobs"
	"github.com/playtally/playtally/internal/models"
)

type fakeStore struct {
	overview      database.Overview
	qualities     []database.QualityCount
	codecs        []database.CodecCount
	lifetime      []database.LifetimeEntry
	users         []models.User
	itemNames     map[string]string
	itemNamesErr  error
	observations  []models.Observation
	overviewErr   error
}

func (f *fakeStore) GetOverview(ctx context.Context) (*database.Overview, error) {
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	ov := f.overview
	return &ov, nil
}

func (f *fakeStore) GetQualityCounts(ctx context.Context) ([]database.QualityCount, error) {
	return f.qualities, nil
}

func (f *fakeStore) GetCodecCounts(ctx context.Context) ([]database.CodecCount, error) {
	return f.codecs, nil
}

func (f *fakeStore) TopLifetimeWatch(ctx context.Context, limit int) ([]database.LifetimeEntry, error) {
	if limit > len(f.lifetime) {
		limit = len(f.lifetime)
	}
	return f.lifetime[:limit], nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return f.users, nil
}

func (f *fakeStore) ItemNames(ctx context.Context, ids []string) (map[string]string, error) {
	if f.itemNamesErr != nil {
		return nil, f.itemNamesErr
	}
	return f.itemNames, nil
}

func (f *fakeStore) ScanObservations(ctx context.Context, since *time.Time, fn func(models.Observation) error) error {
	obs := append([]models.Observation(nil), f.observations...)
	sort.Slice(obs, func(i, j int) bool {
		a, b := obs[i], obs[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.Timestamp.Before(b.Timestamp)
	})
	for _, o := range obs {
		if since != nil && o.Timestamp.Before(*since) {
			continue
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

type fakeCatalog struct {
	refreshes     int
	fullRefreshes int
	progress      jobs.Progress
}

func (f *fakeCatalog) Refresh(ctx context.Context) jobs.Progress {
	f.refreshes++
	return f.progress
}

func (f *fakeCatalog) RefreshFull(ctx context.Context) jobs.Progress {
	f.fullRefreshes++
	return f.progress
}

func (f *fakeCatalog) Status() jobs.Progress { return f.progress }

type fakeBackfill struct {
	starts   int
	progress jobs.Progress
}

func (f *fakeBackfill) Start(ctx context.Context) jobs.Progress {
	f.starts++
	return f.progress
}

func (f *fakeBackfill) Status() jobs.Progress { return f.progress }

type fakeDirectory struct {
	synced, pruned int
	err            error
}

func (f *fakeDirectory) Sync(ctx context.Context) (int, int, error) {
	return f.synced, f.pruned, f.err
}

type testEnv struct {
	store     *fakeStore
	catalog   *fakeCatalog
	backfill  *fakeBackfill
	directory *fakeDirectory
	server    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     &fakeStore{itemNames: map[string]string{}},
		catalog:   &fakeCatalog{},
		backfill:  &fakeBackfill{},
		directory: &fakeDirectory{},
	}
	h := NewHandler(HandlerConfig{
		Store:     env.store,
		Catalog:   env.catalog,
		Backfill:  env.backfill,
		Directory: env.directory,
	})
	env.server = httptest.NewServer(NewRouter(h))
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string) (*http.Response, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+path, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var body APIResponse
	if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotFound {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decoding %s %s: %v", method, path, err)
		}
	}
	return resp, body
}

func dataMap(t *testing.T, body APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data is %T, want object", body.Data)
	}
	return m
}

func TestOverviewEmptyDatabase(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/stats/overview")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !body.Success {
		t.Fatal("expected success on empty database")
	}
	m := dataMap(t, body)
	if m["users"] != float64(0) {
		t.Fatalf("users = %v, want 0", m["users"])
	}
}

func TestQualitiesNestsCountsByItemType(t *testing.T) {
	env := newTestEnv(t)
	env.store.qualities = []database.QualityCount{
		{Quality: database.Quality4K, ItemType: "Episode", Count: 3},
		{Quality: database.Quality4K, ItemType: "Movie", Count: 7},
		{Quality: database.Quality1080p, ItemType: "Movie", Count: 2},
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/stats/qualities")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	m := dataMap(t, body)
	qualities, ok := m["qualities"].(map[string]interface{})
	if !ok {
		t.Fatalf("qualities is %T, want object", m["qualities"])
	}

	// Every known bucket is present, even when the catalog has no items
	// in it, so chart axes stay stable.
	for _, bucket := range database.QualityBuckets {
		if _, ok := qualities[bucket]; !ok {
			t.Errorf("bucket %q missing from response", bucket)
		}
	}

	uhd, ok := qualities[database.Quality4K].(map[string]interface{})
	if !ok {
		t.Fatalf("4K bucket is %T, want object", qualities[database.Quality4K])
	}
	if uhd["Movie"] != float64(7) || uhd["Episode"] != float64(3) {
		t.Errorf("4K bucket = %v, want Movie=7 Episode=3", uhd)
	}

	sd, ok := qualities[database.QualitySD].(map[string]interface{})
	if !ok {
		t.Fatalf("SD bucket is %T, want object", qualities[database.QualitySD])
	}
	if len(sd) != 0 {
		t.Errorf("empty bucket = %v, want no entries", sd)
	}
}

func TestUsageDefaultsAndClamp(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct {
		query    string
		wantDays float64
	}{
		{"", 30},
		{"?days=7", 7},
		{"?days=0", 1},
		{"?days=9999", 365},
		{"?days=banana", 30},
	} {
		_, body := env.do(t, http.MethodGet, "/api/v1/stats/usage"+tc.query)
		m := dataMap(t, body)
		if m["days"] != tc.wantDays {
			t.Fatalf("query %q: days = %v, want %v", tc.query, m["days"], tc.wantDays)
		}
		if m["usage"] == nil {
			t.Fatalf("query %q: usage is null, want empty array", tc.query)
		}
	}
}

func TestTopUsersEnrichesNames(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.store.users = []models.User{{ID: "u1", Name: "Alice"}}
	// Two samples 30s apart, 25s of playback.
	env.store.observations = []models.Observation{
		{UserID: "u1", ItemID: "i1", Timestamp: now.Add(-time.Minute), PositionMs: 0},
		{UserID: "u1", ItemID: "i1", Timestamp: now.Add(-30 * time.Second), PositionMs: 25_000},
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/stats/top/users?window=1d&limit=5")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	m := dataMap(t, body)
	users, ok := m["users"].([]interface{})
	if !ok || len(users) != 1 {
		t.Fatalf("users = %v, want one row", m["users"])
	}
	row := users[0].(map[string]interface{})
	if row["name"] != "Alice" {
		t.Fatalf("name = %v, want Alice", row["name"])
	}
	if row["total_ms"] != float64(5000) {
		t.Fatalf("total_ms = %v, want 5000 (per-pair cap)", row["total_ms"])
	}
}

func TestTopItemsSurvivesNameLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.store.itemNamesErr = errors.New("catalog unavailable")
	env.store.observations = []models.Observation{
		{UserID: "u1", ItemID: "i1", Timestamp: now.Add(-10 * time.Second), PositionMs: 0},
		{UserID: "u1", ItemID: "i1", Timestamp: now.Add(-8 * time.Second), PositionMs: 2000},
	}

	resp, body := env.do(t, http.MethodGet, "/api/v1/stats/top/items")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	m := dataMap(t, body)
	items := m["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("items = %v, want one row", m["items"])
	}
	row := items[0].(map[string]interface{})
	if row["total_ms"] != float64(2000) {
		t.Fatalf("total_ms = %v, want 2000", row["total_ms"])
	}
}

func TestActiveUsersFormatting(t *testing.T) {
	env := newTestEnv(t)
	env.store.lifetime = []database.LifetimeEntry{
		{UserID: "u1", Name: "Alice", TotalMs: (12*24*60 + 5*60 + 42) * 60_000},
		{UserID: "u2", Name: "Bob", TotalMs: 90_000},
	}

	_, body := env.do(t, http.MethodGet, "/api/v1/stats/active-users")
	m := dataMap(t, body)
	users := m["users"].([]interface{})
	if len(users) != 2 {
		t.Fatalf("got %d rows, want 2", len(users))
	}
	first := users[0].(map[string]interface{})
	if first["watched"] != "12d 5h 42m" {
		t.Fatalf("watched = %v, want 12d 5h 42m", first["watched"])
	}
	second := users[1].(map[string]interface{})
	if second["watched"] != "1m" {
		t.Fatalf("watched = %v, want 1m", second["watched"])
	}
}

func TestAdminRefreshReturnsAccepted(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.progress = jobs.Progress{Running: true, Page: 3}

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/refresh")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	m := dataMap(t, body)
	if m["running"] != true {
		t.Fatalf("running = %v, want true", m["running"])
	}
	if env.catalog.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", env.catalog.refreshes)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/refresh/full")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("full refresh status = %d, want 202", resp.StatusCode)
	}
	if env.catalog.fullRefreshes != 1 {
		t.Fatalf("fullRefreshes = %d, want 1", env.catalog.fullRefreshes)
	}
}

func TestAdminRefreshStatus(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.progress = jobs.Progress{Imported: 420, Total: 420}

	resp, body := env.do(t, http.MethodGet, "/api/v1/admin/refresh/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	m := dataMap(t, body)
	if m["imported"] != float64(420) {
		t.Fatalf("imported = %v, want 420", m["imported"])
	}
}

func TestAdminUsersSync(t *testing.T) {
	env := newTestEnv(t)
	env.directory.synced = 4
	env.directory.pruned = 1

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/users/sync")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	m := dataMap(t, body)
	if m["synced"] != float64(4) || m["pruned"] != float64(1) {
		t.Fatalf("data = %v, want synced 4 pruned 1", m)
	}
}

func TestAdminUsersSyncError(t *testing.T) {
	env := newTestEnv(t)
	env.directory.err = errors.New("upstream unreachable")

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/users/sync")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if body.Error == nil || body.Error.Code != ErrCodeInternalError {
		t.Fatalf("error = %v, want %s", body.Error, ErrCodeInternalError)
	}
}

func TestAdminBackfill(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/admin/backfill")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if env.backfill.starts != 1 {
		t.Fatalf("starts = %d, want 1", env.backfill.starts)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/v1/admin/backfill/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status = %d, want 200", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	m := dataMap(t, body)
	if m["status"] != "ok" {
		t.Fatalf("status = %v, want ok", m["status"])
	}
}

func TestStatsRejectsWrongMethod(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/stats/overview")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestFormatWatchTime(t *testing.T) {
	for _, tc := range []struct {
		ms   int64
		want string
	}{
		{0, "0m"},
		{-5, "0m"},
		{59_999, "0m"},
		{60_000, "1m"},
		{3_600_000, "1h 0m"},
		{3_660_000, "1h 1m"},
		{86_400_000, "1d 0h 0m"},
		{90_061_000, "1d 1h 1m"},
	} {
		if got := formatWatchTime(tc.ms); got != tc.want {
			t.Errorf("formatWatchTime(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestWindowLabel(t *testing.T) {
	for _, tc := range []struct {
		window string
		want   string
	}{
		{"", "30d"},
		{"7d", "7d"},
		{"all", "all"},
		{"lifetime", "all"},
	} {
		if got := windowLabel(tc.window); got != tc.want {
			t.Errorf("windowLabel(%q) = %q, want %q", tc.window, got, tc.want)
		}
	}
}
