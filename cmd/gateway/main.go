// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package main is the entry point for the Trackplane gateway.
//
// The gateway is the public front door for the fleet platform. It
// rate-limits incoming traffic, matches request paths against a fixed
// rule table, rewrites the public prefix, and proxies to the owning
// backend service. Each backend sits behind its own circuit breaker so
// a failing service sheds load quickly without taking the others down.
//
// Routing:
//
//	/api/auth/*      -> auth service      (prefix rewritten to /api)
//	/api/devices/*   -> device service    (prefix rewritten to /api)
//	/api/locations/* -> location service  (prefix rewritten to /api)
//
// Backend targets come from AUTH_SERVICE_URL, DEVICE_SERVICE_URL, and
// LOCATION_SERVICE_URL. The gateway listens on GATEWAY_PORT (default
// 3000).
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

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/gateway"
	"github.com/tomtom215/trackplane/internal/logging"
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
		Int("port", cfg.Gateway.Port).
		Str("auth_url", cfg.Gateway.AuthURL).
		Str("device_url", cfg.Gateway.DeviceURL).
		Str("location_url", cfg.Gateway.LocationURL).
		Msg("Starting Trackplane gateway")

	gw, err := gateway.NewGateway(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree("trackplane-gateway", slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:      gw.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	tree.AddAPIService(services.NewHTTPServerService("gateway-http", server, cfg.Gateway.ShutdownTimeout))
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

	logging.Info().Msg("Gateway stopped gracefully")
}
