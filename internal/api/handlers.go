// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/trackplane/internal/auth"
	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/hub"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/models"
	"github.com/tomtom215/trackplane/internal/store"
)

// Handler serves the location service endpoints.
type Handler struct {
	config  *config.Config
	store   *store.PositionStore
	wsHub   *hub.Hub
	updates hub.UpdateHandler
}

// NewHandler creates a handler wired to the position store, the broadcast
// hub, and the ingestion pipeline that processes inbound updates.
func NewHandler(cfg *config.Config, st *store.PositionStore, h *hub.Hub, updates hub.UpdateHandler) *Handler {
	return &Handler{
		config:  cfg,
		store:   st,
		wsHub:   h,
		updates: updates,
	}
}

// LocationHistory returns the most recent samples for a device, newest
// first, capped at 100. The body is a bare JSON array.
func (h *Handler) LocationHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Device ID is required", nil)
		return
	}

	samples, err := h.store.QueryRecent(r.Context(), deviceID, store.MaxQueryLimit)
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Err(err).
			Str("device_id", logging.SanitizeValue(deviceID)).
			Msg("Location history query failed")
		respondError(w, http.StatusInternalServerError, models.CodeStorageFailure, "Failed to fetch locations", nil)
		return
	}

	// Empty result is a 200 with an empty array, matching client expectations.
	if samples == nil {
		samples = []models.StoredSample{}
	}
	respondJSON(w, http.StatusOK, samples)
}

// RealtimeLocation returns the single most recent sample for a device,
// or a literal null body when the device has never reported.
func (h *Handler) RealtimeLocation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, models.CodeValidationError, "Device ID is required", nil)
		return
	}

	sample, found, err := h.store.QueryLatest(r.Context(), deviceID)
	if err != nil {
		logging.Ctx(r.Context()).Error().
			Err(err).
			Str("device_id", logging.SanitizeValue(deviceID)).
			Msg("Realtime location query failed")
		respondError(w, http.StatusInternalServerError, models.CodeStorageFailure, "Failed to fetch location", nil)
		return
	}

	if !found {
		respondJSON(w, http.StatusOK, nil)
		return
	}
	respondJSON(w, http.StatusOK, sample)
}

// healthResponse is the location service health payload.
type healthResponse struct {
	Status        string `json:"status"`
	Subscribers   int    `json:"subscribers"`
	TotalAppends  int64  `json:"totalAppends"`
	TotalQueries  int64  `json:"totalQueries"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

var processStart = time.Now()

// registerTimeout bounds how long an upgraded connection waits for the
// hub run loop to accept it.
const registerTimeout = 2 * time.Second

// Health reports liveness plus basic throughput counters.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.store.Stats()
	respondJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Subscribers:   h.wsHub.GetClientCount(),
		TotalAppends:  stats.TotalAppends,
		TotalQueries:  stats.TotalQueries,
		UptimeSeconds: int64(time.Since(processStart).Seconds()),
	})
}

// getUpgrader creates a websocket upgrader with origin checking and a
// handshake timeout to protect against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates browser origins against the configured
// allow list. Requests without an Origin header are accepted: tracker
// hardware and mobile clients do not send one.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().
		Str("origin", logging.SanitizeValue(origin)).
		Msg("Websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the connection and attaches the client to the
// broadcast hub. The client both receives location-updated events and
// submits location-update events over the same connection.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("Websocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, models.CodeInternalError, "Websocket service unavailable", nil)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("Websocket upgrade error")
		return
	}

	client := hub.NewClient(h.wsHub, conn, identity, h.updates)

	// The hub loop may be down while the supervisor backs off a restart;
	// fail the connection instead of parking the handler on the channel.
	select {
	case h.wsHub.Register <- client:
	case <-r.Context().Done():
		_ = conn.Close()
		return
	case <-time.After(registerTimeout):
		logging.Warn().
			Str("connection_id", client.ConnectionID()).
			Msg("Hub not accepting registrations, closing connection")
		_ = conn.Close()
		return
	}

	client.Start()
}
