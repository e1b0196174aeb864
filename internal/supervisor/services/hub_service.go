// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package services

import (
	"context"
)

// ContextHub matches the broadcast hub's RunWithContext method without
// importing the hub package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService wraps the broadcast hub as a supervised service. The hub's
// RunWithContext already follows the suture.Service pattern, so this
// wrapper only adds a name for logging.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService creates a hub service wrapper.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{
		hub:  hub,
		name: "broadcast-hub",
	}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *HubService) String() string {
	return s.name
}
