// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the full route table.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogging)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.Route("/stats", func(r chi.Router) {
			r.Get("/overview", h.StatsOverview)
			r.Get("/usage", h.StatsUsage)
			r.Get("/top/users", h.StatsTopUsers)
			r.Get("/top/items", h.StatsTopItems)
			r.Get("/qualities", h.StatsQualities)
			r.Get("/codecs", h.StatsCodecs)
			r.Get("/active-users", h.StatsActiveUsers)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/refresh", h.AdminRefresh)
			r.Post("/refresh/full", h.AdminRefreshFull)
			r.Get("/refresh/status", h.AdminRefreshStatus)
			r.Post("/users/sync", h.AdminUsersSync)
			r.Post("/backfill", h.AdminBackfill)
			r.Get("/backfill/status", h.AdminBackfillStatus)
		})
	})

	r.Get("/ws/now", h.WebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	return r
}
