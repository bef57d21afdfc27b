// Playtally - Emby Watch-Time Analytics
// Copyright 2026 Playtally contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/playtally/playtally

// Package services adapts Playtally components to suture.Service.
package services

import "context"

// ServeFunc adapts a component exposing Serve(ctx) error to
// suture.Service. The broadcast hub, the session collector and the job
// scheduler all plug in through this wrapper.
type ServeFunc struct {
	name  string
	serve func(ctx context.Context) error
}

// NewServeFunc wraps serve under the given supervisor-visible name.
func NewServeFunc(name string, serve func(ctx context.Context) error) *ServeFunc {
	return &ServeFunc{name: name, serve: serve}
}

// Serve implements suture.Service.
func (s *ServeFunc) Serve(ctx context.Context) error {
	return s.serve(ctx)
}

// String implements fmt.Stringer for supervisor logs.
func (s *ServeFunc) String() string {
	return s.name
}
