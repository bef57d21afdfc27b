// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package emby

import "fmt"

// APIError is returned when the Emby server answers with a non-2xx status.
// The body is truncated to keep log lines readable.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("emby %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("emby %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

const maxErrorBodyLen = 512

func truncateBody(b []byte) string {
	if len(b) > maxErrorBodyLen {
		return string(b[:maxErrorBodyLen]) + "..."
	}
	return string(b)
}
