// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
collector.go - Session Poller & Diff Filter

The collector is the single writer of the observation ledger. Every tick
it fetches the live sessions once, always publishes the normalized
snapshot, and appends one observation per session whose position moved
since the last ledgered sample. All of a tick's observations commit in
one transaction; the dedup cache is updated only after the commit
succeeds so a failed write retries on the next tick.

A failed poll is logged and skipped. The next tick arrives in two
seconds; retrying sooner only piles onto a struggling upstream.
*/

package collector

import (
	"context"
	"time"

	"github.com/playtally/playtally/internal/emby"
	"github.com/playtally/playtally/internal/logging"
	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// DefaultInterval is the poll cadence.
const DefaultInterval = 2 * time.Second

// Store is the ledger surface the collector writes to.
type Store interface {
	AppendObservations(ctx context.Context, obs []models.Observation) error
	UserIDSet(ctx context.Context) (map[string]struct{}, error)
}

// Publisher receives the live snapshot every tick.
type Publisher interface {
	Publish(snapshot models.NowPlayingSnapshot)
}

// Config holds collector settings.
type Config struct {
	Interval time.Duration
}

// Collector polls Emby sessions and feeds the ledger and the broadcaster.
type Collector struct {
	client    emby.API
	store     Store
	publisher Publisher
	cfg       Config
	cache     *positionCache
	now       func() time.Time
}

// New creates a collector. Interval <= 0 uses DefaultInterval.
func New(client emby.API, store Store, publisher Publisher, cfg Config) *Collector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Collector{
		client:    client,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		cache:     newPositionCache(),
		now:       time.Now,
	}
}

// Serve runs the poll loop until the context is canceled. Designed for
// suture supervision; returns ctx.Err() on shutdown.
func (c *Collector) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", c.cfg.Interval).Msg("Starting session collector")

	// Initial tick so restarts do not wait a full interval.
	c.tick(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "collector").Msg("session collector stopped")
			return ctx.Err()
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// tick performs one poll cycle.
func (c *Collector) tick(ctx context.Context) {
	start := c.now()
	metrics.PollTicksTotal.Inc()
	defer func() {
		metrics.PollDuration.Observe(time.Since(start).Seconds())
	}()

	sessions, err := c.client.GetSessions(ctx)
	if err != nil {
		metrics.PollFailuresTotal.Inc()
		logging.Warn().Err(err).Msg("session poll failed, skipping tick")
		return
	}

	knownUsers, err := c.store.UserIDSet(ctx)
	if err != nil {
		metrics.PollFailuresTotal.Inc()
		logging.Error().Err(err).Msg("failed to load user directory, skipping tick")
		return
	}

	snapshot, observations, positions := c.processTick(sessions, knownUsers, start)

	// The snapshot reflects current reality and is published regardless
	// of what gets persisted this tick.
	metrics.ActiveSessions.Set(float64(len(snapshot.Sessions)))
	c.publisher.Publish(snapshot)

	if len(observations) == 0 {
		return
	}

	if err := c.store.AppendObservations(ctx, observations); err != nil {
		metrics.LedgerWriteFailures.Inc()
		logging.Error().Err(err).Int("observations", len(observations)).Msg("ledger append failed, positions retained for retry")
		return
	}

	c.cache.commit(positions)
	metrics.ObservationsAccepted.Add(float64(len(observations)))
}

// processTick normalizes the sessions into the published snapshot and
// selects the observations to ledger. Pure with respect to the cache; the
// returned positions are committed by the caller only after a successful
// append.
func (c *Collector) processTick(sessions []models.EmbySession, knownUsers map[string]struct{}, at time.Time) (models.NowPlayingSnapshot, []models.Observation, map[models.PartitionKey]int64) {
	snapshot := models.NowPlayingSnapshot{At: at, Sessions: []models.NowPlayingEntry{}}
	var observations []models.Observation
	positions := make(map[models.PartitionKey]int64)

	for i := range sessions {
		s := &sessions[i]
		entry, ok := normalizeSession(s)
		if !ok {
			continue
		}
		snapshot.Sessions = append(snapshot.Sessions, entry)

		// Ledger admission: known user, identifiable item, not paused.
		if s.UserID == "" || s.NowPlayingItem.ID == "" {
			metrics.MalformedSamples.Inc()
			logging.Debug().Str("session", s.ID).Msg("skipping sample without user or item id")
			continue
		}
		if _, known := knownUsers[s.UserID]; !known {
			metrics.ObservationsSkipped.Inc()
			logging.Debug().Str("user_id", s.UserID).Msg("skipping sample for unsynced user")
			continue
		}
		if entry.Paused {
			metrics.ObservationsSkipped.Inc()
			continue
		}

		key := models.PartitionKey{UserID: s.UserID, ItemID: s.NowPlayingItem.ID}
		pos := s.PositionMs()
		if !c.cache.shouldWrite(key, pos) {
			metrics.ObservationsSkipped.Inc()
			continue
		}

		observations = append(observations, models.Observation{
			UserID:     s.UserID,
			ItemID:     s.NowPlayingItem.ID,
			Timestamp:  at,
			EventType:  models.EventTypePlaying,
			PositionMs: pos,
			Transcode:  s.IsTranscoding(),
		})
		positions[key] = pos
	}

	return snapshot, observations, positions
}
