// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package hub implements the live broadcast registry: every accepted
// position sample is fanned out to all currently-connected observers.
// Delivery is best-effort; a disconnected subscriber simply misses
// events while disconnected.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/metrics"
	"github.com/tomtom215/trackplane/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Keepalive event names used alongside the wire-level location events.
const (
	EventPing = "ping"
	EventPong = "pong"
)

// Message frames one event on the realtime channel.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts accepted
// position events to them. Mutation of the client set is serialized
// through the run loop; the send channels decouple delivery so one
// slow subscriber cannot stall publication to others.
type Hub struct {
	cfg config.HubConfig

	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub with the given tuning.
func NewHub(cfg config.HubConfig) *Hub {
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = 256
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 256
	}
	return &Hub{
		cfg:        cfg,
		broadcast:  make(chan Message, cfg.BroadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes all connected clients and returns ctx.Err(). Designed for
// suture supervision.
//
// Priority-based selection keeps behavior predictable when multiple
// channels are ready simultaneously:
//   - Priority 1: context cancellation
//   - Priority 2: client lifecycle events (Register/Unregister)
//   - Priority 3: broadcast messages
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown check, non-blocking.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events, non-blocking. Client state is
		// always settled before the next message is fanned out.
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		// Priority 3: broadcast or wait for any event.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.HubClients.Set(float64(total))
	logging.Info().
		Str("connection_id", client.ConnectionID()).
		Int("total_clients", total).
		Msg("observer connected")
}

// unregisterClient removes a client. Unregistering an already-removed
// client is a no-op.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.HubClients.Set(float64(total))
	logging.Info().
		Str("connection_id", client.ConnectionID()).
		Int("total_clients", total).
		Msg("observer disconnected")
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. ctx.Err() is not logged as an error because cancellation
// is expected behavior here.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "broadcast-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("broadcast hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// broadcastToClients delivers one message to every registered client in
// deterministic ID order. A client whose send buffer is full or whose
// channel was closed is evicted; the failure never reaches other
// subscribers or the publisher.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.HubDeliveriesTotal.Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.HubDroppedTotal.WithLabelValues("slow_client").Inc()
		metrics.HubEvictionsTotal.Inc()
		logging.Warn().
			Str("connection_id", client.ConnectionID()).
			Msg("evicted slow observer")
	}
	if len(toRemove) > 0 {
		metrics.HubClients.Set(float64(len(h.clients)))
	}
}

// closeAllClients closes all connected clients in ID order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.HubClients.Set(0)
}

// BroadcastLocationUpdated publishes a stored sample to every connected
// observer. Publish order matches the order in which store appends
// return. The call never blocks: when the broadcast channel is full the
// event is dropped and counted.
func (h *Hub) BroadcastLocationUpdated(sample models.StoredSample) {
	message := Message{
		Event: models.EventLocationUpdated,
		Data:  models.NewLocationUpdated(sample),
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.HubDroppedTotal.WithLabelValues("channel_full").Inc()
		logging.Warn().Msg("broadcast channel full, dropping location update")
	}
}

// BroadcastJSON publishes an arbitrary event to all connected observers.
func (h *Hub) BroadcastJSON(event string, data interface{}) {
	message := Message{Event: event, Data: data}

	select {
	case h.broadcast <- message:
	default:
		metrics.HubDroppedTotal.WithLabelValues("channel_full").Inc()
		logging.Warn().Str("event", event).Msg("broadcast channel full, dropping message")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
