// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package services

import (
	"context"
	"time"

	"github.com/tomtom215/trackplane/internal/logging"
)

// GarbageCollector matches the position store's RunGC method.
type GarbageCollector interface {
	RunGC() error
}

// StoreGCService periodically reclaims value log space in the position
// store. Badger requires the application to drive this loop.
type StoreGCService struct {
	store    GarbageCollector
	interval time.Duration
	name     string
}

// NewStoreGCService creates a GC service. A non-positive interval falls
// back to 10 minutes.
func NewStoreGCService(store GarbageCollector, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{
		store:    store,
		interval: interval,
		name:     "store-gc",
	}
}

// Serve implements suture.Service. RunGC errors are logged and the loop
// continues; only context cancellation ends the service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.store.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("Store garbage collection failed")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *StoreGCService) String() string {
	return s.name
}
