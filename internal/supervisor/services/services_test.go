// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type fakeHTTPServer struct {
	listenErr   error
	listenAfter time.Duration
	shutdowns   atomic.Int64
	release     chan struct{}
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{release: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenAfter > 0 {
		time.Sleep(f.listenAfter)
		return f.listenErr
	}
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	close(f.release)
	return nil
}

func TestServeFuncDelegates(t *testing.T) {
	var calls atomic.Int64
	svc := NewServeFunc("test-service", func(ctx context.Context) error {
		calls.Add(1)
		return ctx.Err()
	})

	if got := svc.String(); got != "test-service" {
		t.Fatalf("String() = %q, want %q", got, "test-service")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve returned %v, want context.Canceled", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("serve func invoked %d times, want 1", calls.Load())
	}
}

func TestHTTPServerServiceShutsDownOnCancel(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPServerService(srv, ":0", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give the listen goroutine a chance to start.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if srv.shutdowns.Load() != 1 {
		t.Fatalf("Shutdown called %d times, want 1", srv.shutdowns.Load())
	}
}

func TestHTTPServerServiceReturnsListenError(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenAfter = 10 * time.Millisecond
	srv.listenErr = errors.New("bind: address already in use")
	svc := NewHTTPServerService(srv, ":0", time.Second)

	err := svc.Serve(context.Background())
	if err == nil || err.Error() != "bind: address already in use" {
		t.Fatalf("Serve returned %v, want listen error", err)
	}
	if srv.shutdowns.Load() != 0 {
		t.Fatalf("Shutdown called %d times, want 0", srv.shutdowns.Load())
	}
}

type fakeCheckpointer struct {
	calls atomic.Int64
	err   error
}

func (f *fakeCheckpointer) Checkpoint(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestCheckpointServiceRunsOnInterval(t *testing.T) {
	cp := &fakeCheckpointer{}
	svc := NewCheckpointService(cp, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := svc.Serve(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v, want context.DeadlineExceeded", err)
	}
	if cp.calls.Load() == 0 {
		t.Fatal("expected at least one checkpoint call")
	}
}

func TestCheckpointServiceSurvivesErrors(t *testing.T) {
	cp := &fakeCheckpointer{err: errors.New("io error")}
	svc := NewCheckpointService(cp, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve returned %v, want context.DeadlineExceeded", err)
	}
	if cp.calls.Load() < 2 {
		t.Fatalf("checkpoints = %d, want errors not to stop the loop", cp.calls.Load())
	}
}
