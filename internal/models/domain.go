// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

// Package models provides data models for Playtally: tolerant upstream Emby
// payload structures and the local domain records derived from them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a local mirror of an Emby user. The upstream directory is
// authoritative; users absent upstream are pruned by directory sync.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is a local mirror of a library item, upserted by catalog sync.
// VideoCodec and VideoHeight describe the highest-resolution video stream
// found across all of the item's media sources.
type Item struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // "Movie", "Series", "Episode"
	Name        string     `json:"name"`
	AddedAt     *time.Time `json:"added_at,omitempty"`
	VideoCodec  string     `json:"video_codec,omitempty"` // "" means unknown
	VideoHeight *int       `json:"video_height,omitempty"`
}

// Observation is one accepted position sample in the append-only ledger.
// Observations are never mutated or deleted; within a partition (one
// user/item pair) insertion order equals time order.
type Observation struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	ItemID     string    `json:"item_id"`
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"` // currently always "playing"
	PositionMs int64     `json:"position_ms"`
	Transcode  bool      `json:"transcode"`
}

// EventTypePlaying is the event type recorded for position samples taken
// from live session polls.
const EventTypePlaying = "playing"

// LifetimeWatch is the derived all-time total for one user, rebuilt
// wholesale from upstream history by the backfill job. It is the sole
// source of truth for all-time totals and supersedes anything derived
// from partial ledger history.
type LifetimeWatch struct {
	UserID     string    `json:"user_id"`
	TotalMs    int64     `json:"total_ms"`
	ComputedAt time.Time `json:"computed_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PartitionKey identifies one observation partition: all samples of one
// user watching one item.
type PartitionKey struct {
	UserID string
	ItemID string
}
