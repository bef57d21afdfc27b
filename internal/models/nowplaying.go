// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package models

import "time"

// NowPlayingVideo summarizes the video of a live session.
type NowPlayingVideo struct {
	Codec   string `json:"codec,omitempty"`
	Height  *int   `json:"height,omitempty"`
	Bitrate int    `json:"bitrate,omitempty"`
}

// NowPlayingAudio summarizes the audio of a live session.
type NowPlayingAudio struct {
	Codec    string `json:"codec,omitempty"`
	Channels int    `json:"channels,omitempty"`
}

// NowPlayingEntry is one normalized live session in the published view.
type NowPlayingEntry struct {
	UserID     string          `json:"user_id,omitempty"`
	User       string          `json:"user"`
	ItemID     string          `json:"item_id,omitempty"`
	Title      string          `json:"title"`
	Device     string          `json:"device,omitempty"`
	App        string          `json:"app,omitempty"`
	Method     string          `json:"method"` // "Direct" or "Transcode"
	Paused     bool            `json:"paused"`
	PositionMs int64           `json:"position_ms"`
	RuntimeMs  int64           `json:"runtime_ms"`
	Video      NowPlayingVideo `json:"video"`
	Audio      NowPlayingAudio `json:"audio"`
	Subtitles  bool            `json:"subtitles"`
}

// NowPlayingSnapshot is the full "what is happening now" view broadcast to
// live subscribers on every poll tick. It reflects the normalized current
// state of the server, independent of what was persisted that tick.
type NowPlayingSnapshot struct {
	At       time.Time         `json:"at"`
	Sessions []NowPlayingEntry `json:"sessions"`
}
