// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package api

import (
	"net/http"
	"time"
)

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version,omitempty"`
}

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Health handles GET /health. Liveness only; readiness is implied by
// the process serving at all, since the database is embedded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(HealthStatus{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Version:       Version,
	})
}

// WebSocket handles GET /ws/now by delegating to the broadcast
// websocket handler.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ws == nil {
		http.Error(w, "websocket feed unavailable", http.StatusServiceUnavailable)
		return
	}
	h.ws.ServeHTTP(w, r)
}
