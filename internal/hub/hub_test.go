// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

func testHubConfig() config.HubConfig {
	return config.HubConfig{
		BroadcastBuffer: 256,
		ClientBuffer:    256,
	}
}

// setupHub creates and starts a hub; it is stopped at test cleanup.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(testHubConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(10 * time.Millisecond)
	return h
}

// createTestClient builds a client without a live websocket connection.
func createTestClient(h *Hub) *Client {
	return NewClient(h, nil, models.Identity{ID: "u1", Role: "device"}, nil)
}

func registerClient(h *Hub, client *Client) {
	h.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func sampleFor(deviceID string) models.StoredSample {
	return models.StoredSample{
		ID:         "s1",
		DeviceID:   deviceID,
		Latitude:   40.0,
		Longitude:  -73.0,
		ObservedAt: time.Now().UTC(),
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub(testHubConfig())

	if h == nil {
		t.Fatal("NewHub returned nil")
	}
	if h.clients == nil || h.broadcast == nil || h.Register == nil || h.Unregister == nil {
		t.Error("hub channels or client map not initialized")
	}
	if h.GetClientCount() != 0 {
		t.Errorf("expected 0 clients initially, got %d", h.GetClientCount())
	}
}

func TestRegisterUnregister(t *testing.T) {
	h := setupHub(t)
	client := createTestClient(h)

	registerClient(h, client)
	if h.GetClientCount() != 1 {
		t.Fatalf("expected 1 client after register, got %d", h.GetClientCount())
	}

	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if h.GetClientCount() != 0 {
		t.Fatalf("expected 0 clients after unregister, got %d", h.GetClientCount())
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := setupHub(t)
	client := createTestClient(h)
	registerClient(h, client)

	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	// Second unregister of the same client must be a no-op, not a panic.
	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if h.GetClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", h.GetClientCount())
	}
}

func TestBroadcastDeliversToAllClients(t *testing.T) {
	h := setupHub(t)

	c1 := createTestClient(h)
	c2 := createTestClient(h)
	registerClient(h, c1)
	registerClient(h, c2)

	h.BroadcastLocationUpdated(sampleFor("d1"))

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if msg.Event != models.EventLocationUpdated {
				t.Errorf("expected %q event, got %q", models.EventLocationUpdated, msg.Event)
			}
			payload, ok := msg.Data.(models.LocationUpdated)
			if !ok {
				t.Fatalf("unexpected payload type %T", msg.Data)
			}
			if payload.DeviceID != "d1" {
				t.Errorf("expected deviceId d1, got %q", payload.DeviceID)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func TestUnsubscribedClientReceivesNothing(t *testing.T) {
	h := setupHub(t)
	client := createTestClient(h)
	registerClient(h, client)

	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	h.BroadcastLocationUpdated(sampleFor("d1"))
	time.Sleep(20 * time.Millisecond)

	// The channel was closed on unregister; it must be empty.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("unsubscribed client received a delivery")
		}
	default:
		t.Fatal("expected closed send channel")
	}
}

func TestHundredConcurrentSubscribersExactlyOnce(t *testing.T) {
	h := setupHub(t)

	const n = 100
	clients := make([]*Client, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		clients[i] = createTestClient(h)
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			h.Register <- c
		}(clients[i])
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	if h.GetClientCount() != n {
		t.Fatalf("expected %d clients, got %d", n, h.GetClientCount())
	}

	h.BroadcastLocationUpdated(sampleFor("d1"))
	time.Sleep(50 * time.Millisecond)

	for i, c := range clients {
		if got := len(c.send); got != 1 {
			t.Errorf("client %d: expected exactly 1 delivery, got %d", i, got)
		}
	}
}

func TestSlowClientEvicted(t *testing.T) {
	h := NewHub(config.HubConfig{BroadcastBuffer: 16, ClientBuffer: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.RunWithContext(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(10 * time.Millisecond)

	slow := NewClient(h, nil, models.Identity{}, nil)
	healthy := NewClient(h, nil, models.Identity{}, nil)
	registerClient(h, slow)
	registerClient(h, healthy)

	// First event fills the slow client's buffer; the second evicts it.
	h.BroadcastLocationUpdated(sampleFor("d1"))
	time.Sleep(20 * time.Millisecond)
	<-healthy.send
	h.BroadcastLocationUpdated(sampleFor("d2"))
	time.Sleep(20 * time.Millisecond)

	if h.GetClientCount() != 1 {
		t.Fatalf("expected slow client evicted, count = %d", h.GetClientCount())
	}
	<-healthy.send

	// Later publishes never attempt delivery to the evicted client.
	h.BroadcastLocationUpdated(sampleFor("d3"))
	time.Sleep(20 * time.Millisecond)
	if h.GetClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", h.GetClientCount())
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	h := setupHub(t)
	client := createTestClient(h)
	registerClient(h, client)

	devices := []string{"d1", "d2", "d3", "d4", "d5"}
	for _, d := range devices {
		h.BroadcastLocationUpdated(sampleFor(d))
	}
	time.Sleep(50 * time.Millisecond)

	for _, want := range devices {
		msg := <-client.send
		payload := msg.Data.(models.LocationUpdated)
		if payload.DeviceID != want {
			t.Fatalf("out-of-order delivery: expected %q, got %q", want, payload.DeviceID)
		}
	}
}

func TestRunWithContextShutdownClosesClients(t *testing.T) {
	h := NewHub(testHubConfig())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.RunWithContext(ctx)
	}()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(h)
	registerClient(h, client)

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}

	if h.GetClientCount() != 0 {
		t.Errorf("expected all clients closed on shutdown, got %d", h.GetClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("expected client send channel closed on shutdown")
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	h := setupHub(t)
	// Publishing with no subscribers must not block or panic.
	h.BroadcastLocationUpdated(sampleFor("d1"))
	h.BroadcastJSON("status", map[string]interface{}{"ok": true})
	time.Sleep(10 * time.Millisecond)
}
