// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
stats.go - Catalog and Directory Statistics

Read-only aggregates over the reference tables. Watch-time aggregates
live in internal/watchtime; this file covers the catalog-shaped queries
(counts, quality buckets, codec breakdown) that need no ledger scan.
*/

package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/playtally/playtally/internal/metrics"
)

// Overview summarizes the directory and catalog.
type Overview struct {
	Users    int `json:"users"`
	Movies   int `json:"movies"`
	Series   int `json:"series"`
	Episodes int `json:"episodes"`
	Items    int `json:"items"`
}

// GetOverview returns directory and catalog counts. Empty tables produce
// zeroes, never an error.
func (db *DB) GetOverview(ctx context.Context) (ov *Overview, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "library_item", start, err) }()

	ov = &Overview{}

	if err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM emby_user`).Scan(&ov.Users); err != nil {
		return nil, fmt.Errorf("overview users: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT item_type, COUNT(*) FROM library_item GROUP BY item_type`)
	if err != nil {
		return nil, fmt.Errorf("overview items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var itemType string
		var count int
		if err := rows.Scan(&itemType, &count); err != nil {
			return nil, fmt.Errorf("scan overview row: %w", err)
		}
		ov.Items += count
		switch itemType {
		case "Movie":
			ov.Movies = count
		case "Series":
			ov.Series = count
		case "Episode":
			ov.Episodes = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("overview rows: %w", err)
	}
	return ov, nil
}

// Quality bucket labels, ordered from unknown to best.
const (
	QualityUnknown = "Unknown"
	QualitySD      = "SD"
	Quality720p    = "720p"
	Quality1080p   = "1080p"
	Quality4K      = "4K"
)

// QualityBuckets lists every bucket in display order, worst to best.
var QualityBuckets = []string{QualityUnknown, QualitySD, Quality720p, Quality1080p, Quality4K}

// QualityCount is one resolution bucket within one item type.
type QualityCount struct {
	Quality  string `json:"quality"`
	ItemType string `json:"item_type"`
	Count    int    `json:"count"`
}

// GetQualityCounts buckets catalog items by vertical resolution:
// Unknown (missing or <1), SD (1-719), 720p (720-1079), 1080p (1080-2159)
// and 4K (>=2160), split by item type. Only present (bucket, type) pairs
// are returned, ordered bucket then type.
func (db *DB) GetQualityCounts(ctx context.Context) (counts []QualityCount, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "library_item", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			CASE
				WHEN video_height IS NULL OR video_height < 1 THEN 'Unknown'
				WHEN video_height < 720  THEN 'SD'
				WHEN video_height < 1080 THEN '720p'
				WHEN video_height < 2160 THEN '1080p'
				ELSE '4K'
			END AS quality,
			item_type,
			COUNT(*) AS cnt
		FROM library_item
		GROUP BY quality, item_type`)
	if err != nil {
		return nil, fmt.Errorf("quality counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c QualityCount
		if err := rows.Scan(&c.Quality, &c.ItemType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan quality row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quality rows: %w", err)
	}

	rank := make(map[string]int, len(QualityBuckets))
	for i, q := range QualityBuckets {
		rank[q] = i
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Quality != counts[j].Quality {
			return rank[counts[i].Quality] < rank[counts[j].Quality]
		}
		return counts[i].ItemType < counts[j].ItemType
	})
	return counts, nil
}

// CodecCount is one codec with its item count, split by item type.
type CodecCount struct {
	Codec    string `json:"codec"`
	ItemType string `json:"item_type"`
	Count    int    `json:"count"`
}

// GetCodecCounts returns codec usage grouped by item type, most common
// first. Items with no codec metadata are reported as "unknown".
func (db *DB) GetCodecCounts(ctx context.Context) (counts []CodecCount, err error) {
	start := time.Now()
	defer func() { metrics.ObserveDBQuery("select", "library_item", start, err) }()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT LOWER(COALESCE(NULLIF(video_codec, ''), 'unknown')) AS codec,
		       item_type,
		       COUNT(*) AS cnt
		FROM library_item
		GROUP BY codec, item_type
		ORDER BY cnt DESC, codec, item_type`)
	if err != nil {
		return nil, fmt.Errorf("codec counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var c CodecCount
		if err := rows.Scan(&c.Codec, &c.ItemType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan codec row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("codec rows: %w", err)
	}
	return counts, nil
}
