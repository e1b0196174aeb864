// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package hub

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/metrics"
	"github.com/tomtom215/trackplane/internal/models"
)

// UpdateHandler processes one inbound location update from an
// authenticated connection. Implementations validate, persist, and
// publish; errors intended for the originating connection are returned
// as *ClientError.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, ident models.Identity, upd models.LocationUpdate) error
}

// ClientError carries a safe, client-facing message for per-connection
// error events. The wrapped cause stays in the logs only.
type ClientError struct {
	Message string
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error { return e.Err }

// clientIDCounter generates unique, monotonically increasing IDs so
// clients can be sorted in a consistent order for broadcast operations.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
// Each live connection owns its receive loop; disconnect cleanup runs
// as an explicit deferred step, never a callback side effect.
type Client struct {
	id       uint64
	connID   string
	identity models.Identity

	hub     *Hub
	conn    *websocket.Conn
	handler UpdateHandler
	limiter *rate.Limiter

	send chan Message

	subscribedAt time.Time
}

// NewClient creates a Client bound to a hub and an update handler.
// The handler may be nil for observe-only connections.
func NewClient(h *Hub, conn *websocket.Conn, ident models.Identity, handler UpdateHandler) *Client {
	var limiter *rate.Limiter
	if h.cfg.IngestRatePerSec > 0 {
		burst := h.cfg.IngestBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.cfg.IngestRatePerSec), burst)
	}
	return &Client{
		id:           clientIDCounter.Add(1),
		connID:       uuid.New().String(),
		identity:     ident,
		hub:          h,
		conn:         conn,
		handler:      handler,
		limiter:      limiter,
		send:         make(chan Message, h.cfg.ClientBuffer),
		subscribedAt: time.Now().UTC(),
	}
}

// ID returns the client's ordering identifier.
func (c *Client) ID() uint64 { return c.id }

// ConnectionID returns the client's unique connection identifier.
func (c *Client) ConnectionID() string { return c.connID }

// SubscribedAt returns the connection establishment time.
func (c *Client) SubscribedAt() time.Time { return c.subscribedAt }

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump pumps inbound messages from the websocket connection into
// the ingestion handler. It exits on any read error, at which point the
// client is unregistered and the connection closed.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	maxSize := c.hub.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 4096
	}
	c.conn.SetReadLimit(maxSize)

	pongWait := c.hub.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Str("connection_id", c.connID).Msg("unexpected websocket close error")
			}
			break
		}
		c.handleInbound(raw)
	}
}

// handleInbound dispatches one inbound frame. Failures are reported to
// this connection only and never crash the receive loop.
func (c *Client) handleInbound(raw []byte) {
	var env models.SocketEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.IngestRejectedTotal.WithLabelValues("malformed").Inc()
		c.sendError("Malformed message")
		return
	}

	switch env.Event {
	case models.EventLocationUpdate:
		c.handleLocationUpdate(env.Data)

	case EventPing:
		select {
		case c.send <- Message{Event: EventPong}:
		default:
		}

	default:
		logging.Debug().
			Str("event", logging.SanitizeValue(env.Event)).
			Str("connection_id", c.connID).
			Msg("ignoring unknown event")
	}
}

func (c *Client) handleLocationUpdate(data json.RawMessage) {
	if c.handler == nil {
		c.sendError("Updates are not accepted on this connection")
		return
	}

	if c.limiter != nil && !c.limiter.Allow() {
		metrics.IngestRejectedTotal.WithLabelValues("rate_limited").Inc()
		c.sendError("Rate limit exceeded")
		return
	}

	var upd models.LocationUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		metrics.IngestRejectedTotal.WithLabelValues("malformed").Inc()
		c.sendError("Malformed location update")
		return
	}

	if err := c.handler.HandleUpdate(context.Background(), c.identity, upd); err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) {
			c.sendError(clientErr.Message)
		} else {
			c.sendError("Failed to process update")
		}
	}
}

// sendError emits an error event to this connection only. The send is
// non-blocking; a connection too backed up to receive its own error
// report just misses it.
func (c *Client) sendError(message string) {
	select {
	case c.send <- Message{Event: models.EventError, Data: models.SocketError{Message: message}}:
	default:
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	pongWait := c.hub.cfg.PongTimeout
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	writeWait := c.hub.cfg.WriteTimeout
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	pingPeriod := (pongWait * 9) / 10

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Debug().Err(err).Msg("failed to write close message")
				}
				return
			}

			frame, err := models.EncodeEnvelope(message.Event, message.Data)
			if err != nil {
				logging.Error().Err(err).Str("connection_id", c.connID).Msg("failed to encode message")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Error().Err(err).Str("connection_id", c.connID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
