// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
catalog.go - Library Catalog Import

Paginated import of the upstream library into library_item. Each item is
reduced to the metadata the analytics need: type, name, added date and
the best video stream (highest height across the item's streams and all
media sources). Pages commit independently; a failure mid-import keeps
the pages already committed and surfaces the error in the progress
state.
*/

package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playtally/playtally/internal/emby"
	"github.com/playtally/playtally/internal/logging"
	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// DefaultPageSize matches the upstream pagination sweet spot.
const DefaultPageSize = 200

// CatalogStore is the database surface the catalog import needs.
type CatalogStore interface {
	UpsertItems(ctx context.Context, items []models.Item) error
	WipeCatalog(ctx context.Context) error
}

// Catalog imports the library listing page by page, single-flight.
type Catalog struct {
	client   emby.API
	store    CatalogStore
	pageSize int
	flight   singleFlight
	now      func() time.Time
}

// NewCatalog creates the catalog job. pageSize <= 0 uses DefaultPageSize.
func NewCatalog(client emby.API, store CatalogStore, pageSize int) *Catalog {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Catalog{client: client, store: store, pageSize: pageSize, now: time.Now}
}

// Status returns the current (or last finished) import progress.
func (c *Catalog) Status() Progress {
	return c.flight.snapshot()
}

// Refresh starts an incremental import in the background. When a run is
// already in flight the existing run's progress is returned and no new
// worker starts.
func (c *Catalog) Refresh(ctx context.Context) Progress {
	return c.start(ctx, false)
}

// RefreshFull wipes the catalog before importing, producing a clean
// snapshot of the upstream library.
func (c *Catalog) RefreshFull(ctx context.Context) Progress {
	return c.start(ctx, true)
}

func (c *Catalog) start(ctx context.Context, wipe bool) Progress {
	if !c.flight.tryStart(c.now()) {
		return c.flight.snapshot()
	}

	// The worker outlives the triggering HTTP request.
	bg := context.WithoutCancel(ctx)
	go c.run(bg, wipe)

	return c.flight.snapshot()
}

func (c *Catalog) run(ctx context.Context, wipe bool) {
	start := c.now()
	var err error
	defer func() {
		metrics.ObserveSyncRun("catalog", start, err)
		c.flight.finish(c.now(), err)
	}()

	logging.Info().Bool("full", wipe).Msg("catalog import started")

	if wipe {
		if err = c.store.WipeCatalog(ctx); err != nil {
			logging.Error().Err(err).Msg("catalog wipe failed")
			return
		}
	}

	imported := 0
	for page := 0; ; page++ {
		c.flight.update(func(p *Progress) { p.Page = page })

		var resp *models.EmbyItemsPage
		resp, err = c.client.GetItemsPage(ctx, page*c.pageSize, c.pageSize)
		if err != nil {
			err = fmt.Errorf("fetch catalog page %d: %w", page, err)
			logging.Error().Err(err).Msg("catalog import aborted")
			return
		}

		if resp.TotalRecordCount > 0 {
			c.flight.update(func(p *Progress) { p.Total = resp.TotalRecordCount })
		}
		if len(resp.Items) == 0 {
			break
		}

		items := make([]models.Item, 0, len(resp.Items))
		for i := range resp.Items {
			items = append(items, catalogItem(&resp.Items[i]))
		}

		if err = c.store.UpsertItems(ctx, items); err != nil {
			err = fmt.Errorf("upsert catalog page %d: %w", page, err)
			logging.Error().Err(err).Msg("catalog import aborted")
			return
		}

		imported += len(items)
		metrics.CatalogItemsImported.Add(float64(len(items)))
		c.flight.update(func(p *Progress) { p.Imported = imported })

		if (page+1)*c.pageSize >= resp.TotalRecordCount && resp.TotalRecordCount > 0 {
			break
		}
	}

	logging.Info().Int("imported", imported).Msg("catalog import finished")
}

// catalogItem reduces an upstream item to a catalog row. The quality
// fields come from the best (highest) video stream across the item's own
// streams and every media source; items without one keep NULL height and
// land in the Unknown bucket.
func catalogItem(it *models.EmbyItem) models.Item {
	row := models.Item{
		ID:   it.ID,
		Type: it.Type,
		Name: it.Name,
	}

	if ts, ok := parseDateCreated(it.DateCreated); ok {
		row.AddedAt = &ts
	}

	if best := it.BestVideoStream(); best != nil {
		// Codec casing varies between Emby versions ("H264" vs "h264");
		// normalize at import so codec stats aggregate correctly.
		row.VideoCodec = strings.ToLower(best.Codec)
		h := best.Height
		row.VideoHeight = &h
	}

	return row
}

// parseDateCreated handles the timestamp formats Emby emits: RFC3339
// with fractional seconds and zone, or a bare zone-less local form. The
// fallback truncates to seconds and assumes UTC.
func parseDateCreated(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), true
	}
	if len(s) >= 19 {
		if ts, err := time.Parse("2006-01-02T15:04:05", s[:19]); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
