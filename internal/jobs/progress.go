// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
progress.go - Single-Flight Job Coordination

Catalog refresh and lifetime backfill are long-running background jobs
triggered over HTTP. Each job owns one explicit progress record guarded
by a single-flight coordinator: starting is an atomic CAS on the running
flag, and a second start while running just returns the current state
instead of spawning another worker.
*/

package jobs

import (
	"sync"
	"sync/atomic"
	"time"
)

// Progress is the pollable state of a background job.
type Progress struct {
	Running    bool       `json:"running"`
	Page       int        `json:"page"`
	Imported   int        `json:"imported"`
	Total      int        `json:"total"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// singleFlight guards one background job. The running flag is the only
// admission control; the mutex protects the progress record.
type singleFlight struct {
	running  atomic.Bool
	mu       sync.Mutex
	progress Progress
}

// tryStart attempts to claim the job. On success the progress record is
// reset for the new run. Returns false when a run is already in flight.
func (s *singleFlight) tryStart(now time.Time) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.mu.Lock()
	s.progress = Progress{Running: true, StartedAt: &now}
	s.mu.Unlock()
	return true
}

// update mutates the progress record under the lock.
func (s *singleFlight) update(fn func(*Progress)) {
	s.mu.Lock()
	fn(&s.progress)
	s.mu.Unlock()
}

// finish records the outcome and releases the running flag. The progress
// record keeps the final counters for status polling.
func (s *singleFlight) finish(now time.Time, err error) {
	s.mu.Lock()
	s.progress.Running = false
	s.progress.FinishedAt = &now
	if err != nil {
		s.progress.Error = err.Error()
	}
	s.mu.Unlock()
	s.running.Store(false)
}

// snapshot returns a copy of the current progress.
func (s *singleFlight) snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}
