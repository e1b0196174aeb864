// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/metrics"
	"github.com/tomtom215/trackplane/internal/middleware"
	"github.com/tomtom215/trackplane/internal/models"
)

// Gateway routes public API traffic to the backend services.
type Gateway struct {
	config   *config.Config
	backends []*backendProxy
}

// NewGateway builds the rule table and one circuit-breaking proxy per
// backend.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	rules, err := buildRoutes(&cfg.Gateway)
	if err != nil {
		return nil, err
	}

	backends := make([]*backendProxy, 0, len(rules))
	for _, rule := range rules {
		backends = append(backends, newBackendProxy(rule, &cfg.Gateway))
	}

	return &Gateway{
		config:   cfg,
		backends: backends,
	}, nil
}

// Handler assembles the gateway's HTTP handler with the full middleware
// stack.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.config.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Compression)
	r.Use(g.rateLimit())

	r.Get("/health", g.health)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/*", g.dispatch)

	return r
}

func (g *Gateway) rateLimit() func(http.Handler) http.Handler {
	gw := g.config.Gateway
	return httprate.Limit(
		gw.RateLimitReqs,
		gw.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues("gateway").Inc()
			writeJSON(w, http.StatusTooManyRequests,
				models.NewErrorResponse(models.CodeRateLimited, "Too many requests, please try again later"))
		}),
	)
}

// dispatch matches the request path against the rule table and forwards
// to the owning backend.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request) {
	for _, backend := range g.backends {
		if backend.rule.matches(r.URL.Path) {
			backend.ServeHTTP(w, r)
			return
		}
	}

	metrics.GatewayUnroutedTotal.Inc()
	logging.Debug().
		Str("path", logging.SanitizeValue(r.URL.Path)).
		Msg("No route rule matches request")
	writeJSON(w, http.StatusNotFound,
		models.NewErrorResponse(models.CodeRoutingNotFound, "Not found"))
}

// healthPayload reports gateway liveness and per-backend breaker state.
type healthPayload struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends,omitempty"`
}

func (g *Gateway) health(w http.ResponseWriter, r *http.Request) {
	backends := make(map[string]string, len(g.backends))
	for _, backend := range g.backends {
		backends[backend.rule.Backend] = backend.State()
	}

	writeJSON(w, http.StatusOK, healthPayload{
		Status:   "healthy",
		Backends: backends,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal gateway response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
