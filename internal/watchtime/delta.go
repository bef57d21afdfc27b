// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
delta.go - Pairwise Watch-Time Delta

Watch time is never stored; it is reconstructed from consecutive position
samples within one (user, item) partition. Each adjacent pair contributes

	max(0, min(rawDelta, perTickCap, wallGap))

where rawDelta is the position advance, perTickCap bounds what a single
poll interval can plausibly contribute, and wallGap is the elapsed wall
time between the two samples. Rewinds (negative rawDelta) contribute
nothing. Seeking forward past the cap is clamped to the cap; long gaps
between samples (pause, outage) are clamped to the wall gap.
*/

package watchtime

import (
	"github.com/playtally/playtally/internal/models"
)

// DefaultPerTickCapMs bounds the contribution of a single sample pair.
// Matches a 2s poll interval with headroom for jitter.
const DefaultPerTickCapMs = 5000

// PairDelta returns the watch-time contribution in milliseconds of the
// consecutive pair (prev, cur) within one partition. capMs <= 0 falls back
// to DefaultPerTickCapMs.
func PairDelta(prev, cur *models.Observation, capMs int64) int64 {
	if prev == nil || cur == nil {
		return 0
	}
	if capMs <= 0 {
		capMs = DefaultPerTickCapMs
	}

	// Malformed samples contribute nothing.
	if prev.PositionMs < 0 || cur.PositionMs < 0 {
		return 0
	}

	wallGapMs := cur.Timestamp.Sub(prev.Timestamp).Milliseconds()
	if wallGapMs < 0 {
		return 0
	}

	delta := cur.PositionMs - prev.PositionMs
	if delta > capMs {
		delta = capMs
	}
	if delta > wallGapMs {
		delta = wallGapMs
	}
	if delta < 0 {
		return 0
	}
	return delta
}
