// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package gateway

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/middleware"
	"github.com/tomtom215/trackplane/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// echoBackend records the paths it receives and answers 200.
type echoBackend struct {
	server *httptest.Server
	paths  []string
}

func newEchoBackend(t *testing.T) *echoBackend {
	t.Helper()
	b := &echoBackend{}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.paths = append(b.paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(b.server.Close)
	return b
}

func testGatewayConfig(authURL, deviceURL, locationURL string) *config.Config {
	return &config.Config{
		Gateway: config.GatewayConfig{
			Host:            "127.0.0.1",
			Port:            3000,
			AuthURL:         authURL,
			DeviceURL:       deviceURL,
			LocationURL:     locationURL,
			RateLimitReqs:   100,
			RateLimitWindow: 15 * time.Minute,
			ProxyTimeout:    2 * time.Second,
		},
		Security: config.SecurityConfig{
			CORSOrigins: []string{"*"},
		},
	}
}

func setupGateway(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	gw, err := NewGateway(cfg)
	require.NoError(t, err)
	return gw.Handler()
}

func doGet(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGateway_RewritesLocationPrefix(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	location := newEchoBackend(t)
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, location.server.URL))

	rec := doGet(handler, "/api/locations/truck-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, location.paths, 1)
	assert.Equal(t, "/api/truck-1", location.paths[0])
	assert.Empty(t, auth.paths)
	assert.Empty(t, device.paths)
}

func TestGateway_RewritesAuthAndDevicePrefixes(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	location := newEchoBackend(t)
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, location.server.URL))

	doGet(handler, "/api/auth/login")
	doGet(handler, "/api/devices/42")

	require.Len(t, auth.paths, 1)
	assert.Equal(t, "/api/login", auth.paths[0])
	require.Len(t, device.paths, 1)
	assert.Equal(t, "/api/42", device.paths[0])
}

func TestGateway_UnmatchedPathReturns404(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	location := newEchoBackend(t)
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, location.server.URL))

	rec := doGet(handler, "/api/unknown/thing")

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.CodeRoutingNotFound, resp.Error.Code)

	assert.Empty(t, auth.paths)
	assert.Empty(t, device.paths)
	assert.Empty(t, location.paths)
}

func TestGateway_PrefixMatchStopsAtSegmentBoundary(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	location := newEchoBackend(t)
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, location.server.URL))

	rec := doGet(handler, "/api/locationsmith")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, location.paths)
}

func TestGateway_DownedBackendNamedInError(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	// Nothing listens on this port.
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, "http://127.0.0.1:1"))

	rec := doGet(handler, "/api/locations/truck-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Location Service Error", body["error"])

	// Other backends keep working.
	rec = doGet(handler, "/api/devices/42")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, device.paths, 1)
}

func TestGateway_DoesNotRecompressBackendResponse(t *testing.T) {
	payload := `{"ok":true,"data":"` + strings.Repeat("x", 500) + `"}`

	// The location service runs the same compression middleware, so its
	// responses arrive at the gateway already gzipped.
	location := httptest.NewServer(middleware.Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	})))
	t.Cleanup(location.Close)

	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, location.URL))

	req := httptest.NewRequest(http.MethodGet, "/api/locations/truck-1", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"gzip"}, rec.Header().Values("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer func() { _ = gz.Close() }()

	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, string(body))
}

func TestGateway_HealthReportsBackends(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	location := newEchoBackend(t)
	handler := setupGateway(t, testGatewayConfig(auth.server.URL, device.server.URL, location.server.URL))

	rec := doGet(handler, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var payload healthPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "healthy", payload.Status)
	assert.Len(t, payload.Backends, 3)
	for backend, state := range payload.Backends {
		assert.Equal(t, "closed", state, "backend %s", backend)
	}
}

func TestGateway_RateLimitRejectsOverQuota(t *testing.T) {
	auth := newEchoBackend(t)
	device := newEchoBackend(t)
	location := newEchoBackend(t)
	cfg := testGatewayConfig(auth.server.URL, device.server.URL, location.server.URL)
	cfg.Gateway.RateLimitReqs = 2
	cfg.Gateway.RateLimitWindow = time.Minute
	handler := setupGateway(t, cfg)

	doGet(handler, "/api/devices/1")
	doGet(handler, "/api/devices/2")
	rec := doGet(handler, "/api/devices/3")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.CodeRateLimited, resp.Error.Code)
}

func TestGateway_InvalidBackendURLRejected(t *testing.T) {
	cfg := testGatewayConfig("", "http://127.0.0.1:3002", "http://127.0.0.1:3003")
	_, err := NewGateway(cfg)
	assert.Error(t, err)
}

func TestRouteRule_Matching(t *testing.T) {
	rule := RouteRule{Backend: "location", PathPrefix: "/api/locations", Rewrite: "/api"}

	assert.True(t, rule.matches("/api/locations"))
	assert.True(t, rule.matches("/api/locations/truck-1"))
	assert.False(t, rule.matches("/api/locationsmith"))
	assert.False(t, rule.matches("/api/devices/1"))

	assert.Equal(t, "/api/truck-1", rule.rewritePath("/api/locations/truck-1"))
	assert.Equal(t, "/api", rule.rewritePath("/api/locations"))
}
