// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
handlers_admin.go - Admin job triggers

Catalog refresh and lifetime backfill are single-flight: triggering an
already-running job returns the in-flight progress instead of starting
a second run. The user directory sync runs synchronously because it is
a single bounded request pair.
*/

package api

import (
	"net/http"
)

// AdminRefresh handles POST /api/v1/admin/refresh. It starts an
// incremental catalog refresh in the background.
func (h *Handler) AdminRefresh(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Accepted(h.catalog.Refresh(r.Context()))
}

// AdminRefreshFull handles POST /api/v1/admin/refresh/full. It wipes
// the catalog mirror and re-imports everything.
func (h *Handler) AdminRefreshFull(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Accepted(h.catalog.RefreshFull(r.Context()))
}

// AdminRefreshStatus handles GET /api/v1/admin/refresh/status.
func (h *Handler) AdminRefreshStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.catalog.Status())
}

// AdminUsersSync handles POST /api/v1/admin/users/sync. The sync runs
// inline; it is two upstream calls and a couple of statements.
func (h *Handler) AdminUsersSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	synced, pruned, err := h.directory.Sync(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(map[string]int{
		"synced": synced,
		"pruned": pruned,
	})
}

// AdminBackfill handles POST /api/v1/admin/backfill. It starts the
// lifetime watch-time backfill in the background.
func (h *Handler) AdminBackfill(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Accepted(h.backfill.Start(r.Context()))
}

// AdminBackfillStatus handles GET /api/v1/admin/backfill/status.
func (h *Handler) AdminBackfillStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(h.backfill.Status())
}
