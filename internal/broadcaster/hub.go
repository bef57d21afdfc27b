// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

/*
hub.go - Live Snapshot Publisher

The hub fans each now-playing snapshot out to every subscriber through a
bounded per-subscriber queue. A slow subscriber loses snapshots, never
slows the collector: the send is non-blocking and a full queue drops the
snapshot for that subscriber only. The next snapshot supersedes anything
dropped, so there is no catch-up obligation.
*/

package broadcaster

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/playtally/playtally/internal/logging"
	"github.com/playtally/playtally/internal/metrics"
	"github.com/playtally/playtally/internal/models"
)

// DefaultQueueCapacity bounds each subscriber's undelivered snapshots.
const DefaultQueueCapacity = 10

// subscriberIDCounter generates unique, monotonically increasing IDs.
// DETERMINISM: Assigned from an atomic counter so subscribers can be
// iterated in a consistent order during fan-out.
var subscriberIDCounter atomic.Uint64

// Subscriber is one attached snapshot consumer.
type Subscriber struct {
	id uint64
	ch chan models.NowPlayingSnapshot
}

// NewSubscriber creates a subscriber with the given queue capacity.
// capacity <= 0 uses DefaultQueueCapacity.
func NewSubscriber(capacity int) *Subscriber {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Subscriber{
		id: subscriberIDCounter.Add(1),
		ch: make(chan models.NowPlayingSnapshot, capacity),
	}
}

// Snapshots returns the subscriber's receive channel. The hub closes it
// on unregister or shutdown.
func (s *Subscriber) Snapshots() <-chan models.NowPlayingSnapshot {
	return s.ch
}

// Hub maintains the subscriber set and fans snapshots out to it.
type Hub struct {
	subscribers map[*Subscriber]bool
	broadcast   chan models.NowPlayingSnapshot
	Register    chan *Subscriber
	Unregister  chan *Subscriber
	done        chan struct{}
	doneOnce    sync.Once
	queueCap    int
	mu          sync.RWMutex
}

// NewHub creates a hub whose subscribers get queues of the given capacity.
func NewHub(queueCap int) *Hub {
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		broadcast:   make(chan models.NowPlayingSnapshot, 64),
		Register:    make(chan *Subscriber),
		Unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
		queueCap:    queueCap,
	}
}

// Subscribe creates a subscriber and hands it to the hub loop. After the
// hub has stopped the subscriber comes back with its channel already
// closed, so transports drain out instead of blocking on a dead loop.
func (h *Hub) Subscribe() *Subscriber {
	sub := NewSubscriber(h.queueCap)
	select {
	case h.Register <- sub:
	case <-h.done:
		close(sub.ch)
	}
	return sub
}

// Unsubscribe detaches a subscriber. Safe to call after the hub has
// stopped; shutdown already closed every subscriber channel by then.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	select {
	case h.Unregister <- sub:
	case <-h.done:
	}
}

// Publish hands a snapshot to the hub loop. Non-blocking: if the hub's
// own intake is saturated the snapshot is dropped, keeping the collector
// decoupled from delivery.
func (h *Hub) Publish(snapshot models.NowPlayingSnapshot) {
	select {
	case h.broadcast <- snapshot:
	default:
		metrics.BroadcastDrops.Inc()
		logging.Warn().Msg("broadcast intake full, dropping snapshot")
	}
}

// SubscriberCount returns the number of attached subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Serve runs the hub loop until the context is canceled. Designed for
// suture supervision; returns ctx.Err() on shutdown.
//
// DETERMINISM: Uses priority-based selection so behavior is predictable
// when multiple channels are ready:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Subscriber lifecycle events (Register/Unregister)
// - Priority 3: Broadcast fan-out
func (h *Hub) Serve(ctx context.Context) error {
	// Even on a panic path, lifecycle senders must not block forever.
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		// Priority 1: shutdown (non-blocking check)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events (non-blocking check)
		select {
		case sub := <-h.Register:
			h.addSubscriber(sub)
			continue
		case sub := <-h.Unregister:
			h.removeSubscriber(sub)
			continue
		default:
		}

		// Priority 3: fan-out or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case sub := <-h.Register:
			h.addSubscriber(sub)

		case sub := <-h.Unregister:
			h.removeSubscriber(sub)

		case snapshot := <-h.broadcast:
			h.fanOut(snapshot)
		}
	}
}

func (h *Hub) addSubscriber(sub *Subscriber) {
	h.mu.Lock()
	h.subscribers[sub] = true
	total := len(h.subscribers)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(total))
	logging.Info().Int("total_subscribers", total).Msg("snapshot subscriber attached")
}

func (h *Hub) removeSubscriber(sub *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
	total := len(h.subscribers)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(total))
	logging.Info().Int("total_subscribers", total).Msg("snapshot subscriber detached")
}

// fanOut delivers a snapshot to every subscriber with a non-blocking
// send. A full queue drops the snapshot for that subscriber only; the
// subscriber stays attached and receives later snapshots once it drains.
//
// DETERMINISM: Iterates subscribers in ID order so delivery order is
// reproducible within a process run.
func (h *Hub) fanOut(snapshot models.NowPlayingSnapshot) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].id < subs[j].id
	})

	metrics.BroadcastsTotal.Inc()

	for _, sub := range subs {
		select {
		case sub.ch <- snapshot:
		default:
			metrics.BroadcastDrops.Inc()
			logging.Debug().Uint64("subscriber", sub.id).Msg("subscriber queue full, snapshot dropped")
		}
	}
}

// shutdown closes every subscriber channel and logs the reason. Context
// cancellation is expected behavior, not an error.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].id < subs[j].id
	})
	for _, sub := range subs {
		close(sub.ch)
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()

	metrics.Subscribers.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "broadcast-hub").
		Str("reason", reason).
		Int("subscribers_closed", len(subs)).
		Msg("broadcast hub stopped")
}
