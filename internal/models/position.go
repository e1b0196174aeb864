// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package models

import "time"

// PositionSample is one observed device location as accepted at ingestion.
// ObservedAt is server-assigned at acceptance time; device clocks are never
// trusted, so per-device monotonicity is not guaranteed.
type PositionSample struct {
	DeviceID   string    `json:"deviceId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"timestamp"`
}

// StoredSample is the durable form of a PositionSample. ID is assigned by
// the store, Seq is the store's global append sequence. Samples are
// immutable once stored.
type StoredSample struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"-"`
	DeviceID   string    `json:"deviceId"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"timestamp"`
}

// Identity is a verified caller identity extracted from a bearer credential.
type Identity struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
