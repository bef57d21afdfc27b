// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
normalize.go - Session Normalization

Upstream session payloads are loosely typed and frequently sparse.
Normalization maps them into the published now-playing view with
documented defaults: missing codec -> "unknown", missing position -> 0,
missing user name -> "unknown". Sessions without an item are not part of
the view at all.
*/

package collector

import (
	"github.com/playtally/playtally/internal/models"
)

const unknownField = "unknown"

// normalizeSession maps one active session into a now-playing entry.
// Returns false for sessions with no loaded item.
func normalizeSession(s *models.EmbySession) (models.NowPlayingEntry, bool) {
	if s == nil || s.NowPlayingItem == nil {
		return models.NowPlayingEntry{}, false
	}
	item := s.NowPlayingItem

	entry := models.NowPlayingEntry{
		UserID:     s.UserID,
		User:       s.UserName,
		ItemID:     item.ID,
		Title:      item.DisplayTitle(),
		Device:     s.DeviceName,
		App:        s.Client,
		PositionMs: s.PositionMs(),
		RuntimeMs:  models.TicksToMs(item.RunTimeTicks),
		Method:     "Direct",
	}

	if entry.User == "" {
		entry.User = unknownField
	}
	if entry.Title == "" {
		entry.Title = unknownField
	}
	if s.IsTranscoding() {
		entry.Method = "Transcode"
	}
	if s.PlayState != nil {
		entry.Paused = s.PlayState.IsPaused
		entry.Subtitles = s.PlayState.SubtitleStreamIndex != nil && *s.PlayState.SubtitleStreamIndex >= 0
	}

	entry.Video, entry.Audio = normalizeStreams(item.MediaStreams)

	// The transcode target, when present, describes what the client
	// actually receives.
	if ti := s.TranscodingInfo; ti != nil {
		if ti.VideoCodec != "" {
			entry.Video.Codec = ti.VideoCodec
		}
		if ti.Bitrate > 0 {
			entry.Video.Bitrate = ti.Bitrate
		}
		if ti.AudioCodec != "" {
			entry.Audio.Codec = ti.AudioCodec
		}
		if ti.AudioChannels > 0 {
			entry.Audio.Channels = ti.AudioChannels
		}
	}

	return entry, true
}

// normalizeStreams extracts the primary video and audio streams with
// tolerant defaults.
func normalizeStreams(streams []models.EmbyMediaStream) (models.NowPlayingVideo, models.NowPlayingAudio) {
	video := models.NowPlayingVideo{Codec: unknownField}
	audio := models.NowPlayingAudio{Codec: unknownField}

	haveVideo, haveAudio := false, false
	for i := range streams {
		st := &streams[i]
		switch st.Type {
		case "Video":
			if haveVideo {
				continue
			}
			haveVideo = true
			if st.Codec != "" {
				video.Codec = st.Codec
			}
			if st.Height > 0 {
				h := st.Height
				video.Height = &h
			}
			if st.BitRate > 0 {
				video.Bitrate = st.BitRate
			}
		case "Audio":
			if haveAudio {
				continue
			}
			haveAudio = true
			if st.Codec != "" {
				audio.Codec = st.Codec
			}
			if st.Channels > 0 {
				audio.Channels = st.Channels
			}
		}
	}
	return video, audio
}
