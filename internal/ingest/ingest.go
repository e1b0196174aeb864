// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package ingest accepts position updates from authenticated device
// connections: validate, timestamp, persist, then publish. Publication
// happens only after the sample is durably recorded.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/trackplane/internal/hub"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/metrics"
	"github.com/tomtom215/trackplane/internal/models"
	"github.com/tomtom215/trackplane/internal/validation"
)

// Appender persists one position sample.
type Appender interface {
	Append(ctx context.Context, sample models.PositionSample) (models.StoredSample, error)
}

// Publisher fans a stored sample out to live observers.
type Publisher interface {
	BroadcastLocationUpdated(sample models.StoredSample)
}

// Service is the ingestion pipeline shared by all device connections.
// It is stateless; concurrency control lives in the store and the hub.
type Service struct {
	store     Appender
	publisher Publisher
}

// NewService creates the ingestion pipeline.
func NewService(store Appender, publisher Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// HandleUpdate processes one inbound location update. The observed_at
// timestamp is assigned here, at acceptance time. Coordinates are
// checked for presence only; range validation is deliberately not
// applied. On append failure the error is reported to the originating
// connection only and nothing is published.
func (s *Service) HandleUpdate(ctx context.Context, ident models.Identity, upd models.LocationUpdate) error {
	if verr := validation.ValidateStruct(&upd); verr != nil {
		metrics.IngestRejectedTotal.WithLabelValues("validation").Inc()
		apiErr := verr.ToAPIError()
		return &hub.ClientError{Message: apiErr.Message, Err: verr}
	}

	sample := models.PositionSample{
		DeviceID:   upd.DeviceID,
		Latitude:   *upd.Latitude,
		Longitude:  *upd.Longitude,
		ObservedAt: time.Now().UTC(),
	}

	stored, err := s.store.Append(ctx, sample)
	if err != nil {
		metrics.IngestRejectedTotal.WithLabelValues("storage").Inc()
		logging.Error().
			Err(err).
			Str("device_id", logging.SanitizeValue(upd.DeviceID)).
			Str("identity", ident.ID).
			Msg("failed to save location")
		return &hub.ClientError{Message: "Failed to save location", Err: err}
	}

	// Fire-and-forget from the ingestion path's perspective; the hub
	// isolates per-subscriber delivery failures.
	s.publisher.BroadcastLocationUpdated(stored)

	metrics.IngestAcceptedTotal.Inc()
	if logging.IsLevelEnabled(zerolog.DebugLevel) {
		logging.Debug().
			Str("device_id", logging.SanitizeValue(stored.DeviceID)).
			Str("sample_id", stored.ID).
			Msg("location update accepted")
	}
	return nil
}
