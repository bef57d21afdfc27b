// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package collector

import (
	"sync"

	"github.com/playtally/playtally/internal/models"
)

// positionCache remembers the last ledgered position per (user, item)
// partition. It is the dedup filter: a tick that reports the same
// position as the cache writes nothing for that partition.
//
// The cache is only ever updated after a successful ledger commit, so a
// failed write leaves the stale position in place and the next tick
// retries the append naturally.
type positionCache struct {
	mu        sync.Mutex
	positions map[models.PartitionKey]int64
}

func newPositionCache() *positionCache {
	return &positionCache{positions: make(map[models.PartitionKey]int64)}
}

// shouldWrite reports whether posMs differs from the cached position for
// the partition (or the partition is unseen).
func (c *positionCache) shouldWrite(key models.PartitionKey, posMs int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.positions[key]
	return !ok || last != posMs
}

// commit records the ledgered positions after a successful append.
func (c *positionCache) commit(positions map[models.PartitionKey]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, pos := range positions {
		c.positions[key] = pos
	}
}

// size returns the number of tracked partitions.
func (c *positionCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.positions)
}
