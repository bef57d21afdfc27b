// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
emby.go - Emby API Payload Models

Tolerant-parsing structures for the Emby REST API. Emby payloads are loosely
typed: almost every field may be absent. Field defaults applied downstream:

  - missing codec            -> "unknown"
  - missing/zero height      -> NULL (falls in the "Unknown" quality bucket)
  - missing position ticks   -> 0

Time and position fields use Emby ticks: 100-nanosecond units, so
10,000 ticks = 1 millisecond.

API Reference: https://dev.emby.media/doc/restapi/index.html
*/

package models

import (
	"fmt"
	"strings"
)

// TicksPerMs is the number of Emby ticks (100ns units) per millisecond.
const TicksPerMs = 10_000

// TicksToMs converts an Emby tick value to milliseconds.
func TicksToMs(ticks int64) int64 {
	return ticks / TicksPerMs
}

// EmbySession represents an active session from GET /Sessions.
type EmbySession struct {
	ID         string `json:"Id"`
	Client     string `json:"Client"`
	DeviceName string `json:"DeviceName"`

	UserID   string `json:"UserId"`
	UserName string `json:"UserName"`

	NowPlayingItem  *EmbyNowPlayingItem  `json:"NowPlayingItem,omitempty"`
	PlayState       *EmbyPlayState       `json:"PlayState,omitempty"`
	TranscodingInfo *EmbyTranscodingInfo `json:"TranscodingInfo,omitempty"`
}

// EmbyNowPlayingItem represents the currently playing content in a session.
type EmbyNowPlayingItem struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
	Type string `json:"Type"` // "Movie", "Episode", ...

	SeriesName        string `json:"SeriesName,omitempty"`
	IndexNumber       int    `json:"IndexNumber,omitempty"`       // Episode number
	ParentIndexNumber int    `json:"ParentIndexNumber,omitempty"` // Season number

	RunTimeTicks   int64 `json:"RunTimeTicks"`
	ProductionYear int   `json:"ProductionYear,omitempty"`

	MediaStreams []EmbyMediaStream `json:"MediaStreams,omitempty"`
}

// EmbyPlayState represents playback state details.
type EmbyPlayState struct {
	PositionTicks       int64  `json:"PositionTicks"`
	IsPaused            bool   `json:"IsPaused"`
	PlayMethod          string `json:"PlayMethod,omitempty"` // "DirectPlay", "DirectStream", "Transcode"
	SubtitleStreamIndex *int   `json:"SubtitleStreamIndex,omitempty"` // nil or -1 means no subtitles
}

// EmbyTranscodingInfo represents transcode session details.
type EmbyTranscodingInfo struct {
	VideoCodec       string   `json:"VideoCodec,omitempty"`
	AudioCodec       string   `json:"AudioCodec,omitempty"`
	IsVideoDirect    bool     `json:"IsVideoDirect"`
	IsAudioDirect    bool     `json:"IsAudioDirect"`
	Bitrate          int      `json:"Bitrate,omitempty"`
	AudioChannels    int      `json:"AudioChannels,omitempty"`
	TranscodeReasons []string `json:"TranscodeReasons,omitempty"`
}

// EmbyMediaStream represents a single stream inside an item or media source.
type EmbyMediaStream struct {
	Type     string `json:"Type"` // "Video", "Audio", "Subtitle"
	Codec    string `json:"Codec,omitempty"`
	Height   int    `json:"Height,omitempty"`
	Width    int    `json:"Width,omitempty"`
	BitRate  int    `json:"BitRate,omitempty"`
	Channels int    `json:"Channels,omitempty"`
}

// EmbyMediaSource represents one playable source of an item. Items commonly
// list several sources (different files or qualities) with their own streams.
type EmbyMediaSource struct {
	ID           string            `json:"Id"`
	MediaStreams []EmbyMediaStream `json:"MediaStreams,omitempty"`
}

// EmbyUser represents an Emby user from GET /Users.
type EmbyUser struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// EmbyItem represents a library item from the paginated GET /Items.
type EmbyItem struct {
	ID           string            `json:"Id"`
	Type         string            `json:"Type"` // "Movie", "Series", "Episode"
	Name         string            `json:"Name"`
	DateCreated  string            `json:"DateCreated,omitempty"`
	RunTimeTicks int64             `json:"RunTimeTicks,omitempty"`
	UserData     *EmbyUserData     `json:"UserData,omitempty"`
	MediaStreams []EmbyMediaStream `json:"MediaStreams,omitempty"`
	MediaSources []EmbyMediaSource `json:"MediaSources,omitempty"`
}

// EmbyUserData carries per-user playback metadata on an item.
type EmbyUserData struct {
	PlayCount int `json:"PlayCount"`
}

// EmbyItemsPage is the envelope of a paginated items response.
type EmbyItemsPage struct {
	Items            []EmbyItem `json:"Items"`
	TotalRecordCount int        `json:"TotalRecordCount,omitempty"`
}

// IsPlaying returns true if the session is actively playing content.
func (s *EmbySession) IsPlaying() bool {
	return s.NowPlayingItem != nil && s.PlayState != nil && !s.PlayState.IsPaused
}

// IsActive returns true if the session has content loaded (playing or paused).
func (s *EmbySession) IsActive() bool {
	return s.NowPlayingItem != nil
}

// PositionMs returns the current playback position in milliseconds, 0 when
// the play state is missing.
func (s *EmbySession) PositionMs() int64 {
	if s.PlayState == nil {
		return 0
	}
	return TicksToMs(s.PlayState.PositionTicks)
}

// IsTranscoding reports whether the session is transcoding.
func (s *EmbySession) IsTranscoding() bool {
	if s.TranscodingInfo != nil {
		return true
	}
	return s.PlayState != nil && s.PlayState.PlayMethod == "Transcode"
}

// DisplayTitle returns a human-readable title for the playing item, using
// the "Series • S02E05 Name" form for episodes.
func (n *EmbyNowPlayingItem) DisplayTitle() string {
	if n.SeriesName == "" {
		return n.Name
	}

	var code string
	if n.ParentIndexNumber > 0 {
		code = fmt.Sprintf("S%02d", n.ParentIndexNumber)
	}
	if n.IndexNumber > 0 {
		code += fmt.Sprintf("E%02d", n.IndexNumber)
	}
	if code == "" || n.Name == "" {
		return n.SeriesName
	}
	return fmt.Sprintf("%s • %s %s", n.SeriesName, code, n.Name)
}

// BestVideoStream picks the highest-resolution video stream across the
// item's own streams and every media source. Streams with no positive
// height are ignored; ties are broken by the greatest height seen first.
// Returns nil when the item has no usable video stream.
func (i *EmbyItem) BestVideoStream() *EmbyMediaStream {
	var best *EmbyMediaStream

	consider := func(st *EmbyMediaStream) {
		if !strings.EqualFold(st.Type, "Video") || st.Height <= 0 {
			return
		}
		if best == nil || st.Height > best.Height {
			best = st
		}
	}

	for idx := range i.MediaStreams {
		consider(&i.MediaStreams[idx])
	}
	for s := range i.MediaSources {
		streams := i.MediaSources[s].MediaStreams
		for idx := range streams {
			consider(&streams[idx])
		}
	}
	return best
}
