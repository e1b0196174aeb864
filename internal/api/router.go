// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/trackplane/internal/auth"
	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/metrics"
	"github.com/tomtom215/trackplane/internal/middleware"
	"github.com/tomtom215/trackplane/internal/models"
)

// Router assembles the location service's HTTP handler.
type Router struct {
	config  *config.Config
	handler *Handler
	jwt     *auth.JWTManager
}

// NewRouter creates a router over the given handler. The JWT manager may
// be nil, in which case authenticated routes reject every request.
func NewRouter(cfg *config.Config, handler *Handler, jwt *auth.JWTManager) *Router {
	return &Router{
		config:  cfg,
		handler: handler,
		jwt:     jwt,
	}
}

// SetupChi configures all routes and the middleware stack.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.corsHandler())
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Compression)

	// Operational endpoints, no auth and no admission limit beyond a
	// permissive cap for monitoring systems.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, router.config.Security.RateLimitWindow))
		r.Get("/health", router.handler.Health)
		r.Handle("/metrics", promhttp.Handler())
	})

	// Location queries.
	r.Route("/api/locations", func(r chi.Router) {
		r.Use(router.rateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authenticate())

		r.Get("/realtime/{deviceId}", router.handler.RealtimeLocation)
		r.Get("/{deviceId}", router.handler.LocationHistory)
	})

	// Websocket ingestion and fan-out. Browser clients pass the token as
	// a query parameter, so this shares the same auth middleware.
	r.Group(func(r chi.Router) {
		r.Use(router.authenticate())
		r.Get("/ws", router.handler.WebSocket)
	})

	return r
}

func (router *Router) corsHandler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   router.config.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

func (router *Router) rateLimit() func(http.Handler) http.Handler {
	sec := router.config.Security
	if sec.RateLimitDisabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		sec.RateLimitReqs,
		sec.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			respondError(w, http.StatusTooManyRequests, models.CodeRateLimited,
				"Too many requests, please try again later", nil)
		}),
	)
}

func (router *Router) authenticate() func(http.Handler) http.Handler {
	if router.jwt == nil {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respondError(w, http.StatusServiceUnavailable, models.CodeInternalError,
					"Authentication not configured", nil)
			})
		}
	}
	return auth.Middleware(router.jwt)
}
