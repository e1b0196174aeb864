// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package main is the entry point for the Trackplane location service.
//
// The location service ingests real-time position updates from fleet
// devices over websocket connections, persists them to an embedded
// Badger store, and fans accepted updates out to every connected
// subscriber. It also serves the location query API.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config file (Koanf v2)
//  2. Position store: embedded Badger database
//  3. Broadcast hub: registration and fan-out for websocket clients
//  4. Ingestion pipeline: validate, persist, then publish
//  5. Authentication: JWT bearer tokens
//  6. HTTP server: query API, websocket endpoint, health and metrics
//
// All long-running components run under a Suture supervisor tree, so a
// crashed hub restarts without dropping the HTTP listener.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file, built-in
// defaults. Common variables:
//
//	export HTTP_PORT=3003
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export STORE_PATH=/data/positions
//	./trackplane-server
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests, closes websocket
// clients, and finally closes the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/trackplane/internal/api"
	"github.com/tomtom215/trackplane/internal/auth"
	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/hub"
	"github.com/tomtom215/trackplane/internal/ingest"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/store"
	"github.com/tomtom215/trackplane/internal/supervisor"
	"github.com/tomtom215/trackplane/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Int("port", cfg.Server.Port).
		Str("store_path", cfg.Store.Path).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("Starting Trackplane location service")

	st, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open position store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing position store")
		}
	}()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager (set JWT_SECRET)")
	}
	if cfg.Security.JWTSecret == "your-secret-key" {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: JWT_SECRET is the built-in default")
		logging.Warn().Msg("  Anyone can mint valid tokens for this deployment.")
		logging.Warn().Msg("  Set JWT_SECRET to a random value in production.")
		logging.Warn().Msg("============================================================")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree("trackplane-server", slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	broadcastHub := hub.NewHub(cfg.Hub)
	ingestService := ingest.NewService(st, broadcastHub)

	handler := api.NewHandler(cfg, st, broadcastHub, ingestService)
	router := api.NewRouter(cfg, handler, jwtManager)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if !cfg.Store.InMemory {
		tree.AddDataService(services.NewStoreGCService(st, 10*time.Minute))
	}
	tree.AddMessagingService(services.NewHubService(broadcastHub))
	tree.AddAPIService(services.NewHTTPServerService("location-http", server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Location service stopped gracefully")
}
