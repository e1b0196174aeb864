// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// Event names exchanged over the realtime channel. These are wire-level
// contracts shared with device firmware and dashboard clients; do not
// rename them.
const (
	EventLocationUpdate  = "location-update"
	EventLocationUpdated = "location-updated"
	EventError           = "error"
)

// SocketEnvelope frames every message on the realtime channel as an
// event name plus an event-specific payload.
type SocketEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// LocationUpdate is the inbound "location-update" payload. Latitude and
// Longitude are pointers so that absent fields are distinguishable from
// zero values during validation. No range check is applied to either.
type LocationUpdate struct {
	DeviceID  string   `json:"deviceId" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

// Location is the nested position object inside a broadcast event.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdated is the outbound "location-updated" broadcast payload.
type LocationUpdated struct {
	DeviceID string   `json:"deviceId"`
	Location Location `json:"location"`
}

// SocketError is the outbound "error" payload sent to a single connection.
type SocketError struct {
	Message string `json:"message"`
}

// NewLocationUpdated builds the broadcast payload for a stored sample.
func NewLocationUpdated(s StoredSample) LocationUpdated {
	return LocationUpdated{
		DeviceID: s.DeviceID,
		Location: Location{
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Timestamp: s.ObservedAt,
		},
	}
}

// EncodeEnvelope marshals an event payload into a framed wire message.
func EncodeEnvelope(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(SocketEnvelope{Event: event, Data: data})
}
