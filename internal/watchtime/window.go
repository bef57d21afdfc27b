// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package watchtime

import (
	"strconv"
	"strings"
	"time"
)

// DefaultWindow is used when a window string cannot be parsed.
const DefaultWindow = 30 * 24 * time.Hour

// ParseWindow parses a time-window string of the form "<int><unit>" where
// unit is d (days), h (hours), w (weeks) or m (months of 30 days).
// "all", "lifetime" and "ever" mean unbounded and return ok=false.
// Anything unparsable falls back to 30 days.
func ParseWindow(s string) (d time.Duration, bounded bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "all", "lifetime", "ever":
		return 0, false
	case "":
		return DefaultWindow, true
	}

	if len(s) < 2 {
		return DefaultWindow, true
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return DefaultWindow, true
	}

	switch s[len(s)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	case 'm':
		return time.Duration(n) * 30 * 24 * time.Hour, true
	default:
		return DefaultWindow, true
	}
}

// WindowCutoff converts a window string into a ledger scan cutoff relative
// to now. Unbounded windows return nil.
func WindowCutoff(s string, now time.Time) *time.Time {
	d, bounded := ParseWindow(s)
	if !bounded {
		return nil
	}
	cutoff := now.Add(-d)
	return &cutoff
}
