// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/playtally/playtally/internal/models"
)

func snapshotAt(n int) models.NowPlayingSnapshot {
	return models.NowPlayingSnapshot{
		At: time.Date(2026, 2, 1, 10, 0, n, 0, time.UTC),
	}
}

func TestFanOutDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(10)
	a := NewSubscriber(10)
	b := NewSubscriber(10)
	hub.addSubscriber(a)
	hub.addSubscriber(b)

	hub.fanOut(snapshotAt(1))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case got := <-sub.Snapshots():
			if got.At != snapshotAt(1).At {
				t.Errorf("unexpected snapshot: %+v", got)
			}
		default:
			t.Error("subscriber did not receive snapshot")
		}
	}
}

func TestEleventhBroadcastDroppedForFullSubscriberOnly(t *testing.T) {
	hub := NewHub(10)
	full := NewSubscriber(10)
	draining := NewSubscriber(10)
	hub.addSubscriber(full)
	hub.addSubscriber(draining)

	// 'full' never drains; 'draining' consumes after every fan-out.
	for i := 0; i < 11; i++ {
		hub.fanOut(snapshotAt(i))
		select {
		case <-draining.Snapshots():
		default:
			t.Fatalf("draining subscriber missed snapshot %d", i)
		}
	}

	// The full subscriber holds exactly its capacity; the 11th was dropped.
	if got := len(full.ch); got != 10 {
		t.Fatalf("full subscriber holds %d snapshots, want 10", got)
	}

	// It stays attached and the oldest queued snapshot is the first one.
	if hub.SubscriberCount() != 2 {
		t.Errorf("subscriber count = %d, want 2", hub.SubscriberCount())
	}
	first := <-full.ch
	if first.At != snapshotAt(0).At {
		t.Errorf("first queued snapshot = %v, want the oldest", first.At)
	}
}

func TestDrainedSubscriberReceivesAgainAfterDrop(t *testing.T) {
	hub := NewHub(2)
	sub := NewSubscriber(2)
	hub.addSubscriber(sub)

	hub.fanOut(snapshotAt(0))
	hub.fanOut(snapshotAt(1))
	hub.fanOut(snapshotAt(2)) // dropped

	<-sub.ch
	<-sub.ch

	hub.fanOut(snapshotAt(3))
	select {
	case got := <-sub.ch:
		if got.At != snapshotAt(3).At {
			t.Errorf("got %v, want snapshot 3", got.At)
		}
	default:
		t.Error("subscriber should receive after draining")
	}
}

func TestServeLifecycle(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	sub := hub.Subscribe()

	hub.Publish(snapshotAt(1))

	select {
	case got := <-sub.Snapshots():
		if got.At != snapshotAt(1).At {
			t.Errorf("unexpected snapshot: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}

	// Shutdown closes the subscriber channel.
	select {
	case _, ok := <-sub.Snapshots():
		if ok {
			t.Error("expected closed channel after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	sub := hub.Subscribe()
	hub.Unregister <- sub

	select {
	case _, ok := <-sub.Snapshots():
		if ok {
			t.Error("expected closed channel after unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestSubscribeAfterShutdownReturnsClosedChannel(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}

	// A late Subscribe must not hang on the Register channel; the
	// caller sees an already-closed channel and exits naturally.
	sub := hub.Subscribe()
	select {
	case _, ok := <-sub.Snapshots():
		if ok {
			t.Error("expected closed channel from post-shutdown Subscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("post-shutdown Subscribe blocked")
	}
}

func TestUnsubscribeAfterShutdownDoesNotBlock(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	sub := hub.Subscribe()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}

	returned := make(chan struct{})
	go func() {
		hub.Unsubscribe(sub)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe blocked after shutdown")
	}
}

func TestUnsubscribeClosesChannelWhileRunning(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	sub := hub.Subscribe()
	hub.Unsubscribe(sub)

	select {
	case _, ok := <-sub.Snapshots():
		if ok {
			t.Error("expected closed channel after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	hub := NewHub(10)
	// No Serve loop draining the intake; Publish must still return.
	for i := 0; i < 200; i++ {
		hub.Publish(snapshotAt(i))
	}
}
