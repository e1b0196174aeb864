// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package config holds the layered configuration for both Trackplane
// binaries. Precedence is ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration shared by the location service and
// the gateway. Each binary reads the sections it needs.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Hub      HubConfig      `koanf:"hub"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the location service HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// GatewayConfig configures the request-routing gateway: its own
// listener, the backend targets, and the admission rate limit.
// Route rules are derived from the backend URLs at startup and are
// immutable afterwards.
type GatewayConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	AuthURL     string `koanf:"auth_url"`
	DeviceURL   string `koanf:"device_url"`
	LocationURL string `koanf:"location_url"`

	// Admission control per client IP, applied before routing.
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// Circuit breaker tuning, one breaker per backend.
	BreakerMaxRequests uint32        `koanf:"breaker_max_requests"`
	BreakerInterval    time.Duration `koanf:"breaker_interval"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`

	ProxyTimeout    time.Duration `koanf:"proxy_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig configures the embedded position store.
type StoreConfig struct {
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	InMemory   bool          `koanf:"in_memory"`
	OpTimeout  time.Duration `koanf:"op_timeout"`
}

// SecurityConfig configures identity verification and cross-cutting
// request policy.
type SecurityConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`

	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// HubConfig tunes the broadcast hub and its websocket clients.
type HubConfig struct {
	BroadcastBuffer int           `koanf:"broadcast_buffer"`
	ClientBuffer    int           `koanf:"client_buffer"`
	MaxMessageSize  int64         `koanf:"max_message_size"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	PongTimeout     time.Duration `koanf:"pong_timeout"`

	// Inbound location-update admission per connection.
	// Zero disables the limiter.
	IngestRatePerSec float64 `koanf:"ingest_rate_per_sec"`
	IngestBurst      int     `koanf:"ingest_burst"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks cross-field constraints after unmarshaling.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}
	if c.Store.Path == "" && !c.Store.InMemory {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store.op_timeout must be positive, got %v", c.Store.OpTimeout)
	}
	if c.Hub.BroadcastBuffer < 1 {
		return fmt.Errorf("hub.broadcast_buffer must be at least 1, got %d", c.Hub.BroadcastBuffer)
	}
	if c.Hub.ClientBuffer < 1 {
		return fmt.Errorf("hub.client_buffer must be at least 1, got %d", c.Hub.ClientBuffer)
	}
	if c.Gateway.RateLimitReqs < 1 {
		return fmt.Errorf("gateway.rate_limit_requests must be at least 1, got %d", c.Gateway.RateLimitReqs)
	}
	if c.Gateway.RateLimitWindow <= 0 {
		return fmt.Errorf("gateway.rate_limit_window must be positive, got %v", c.Gateway.RateLimitWindow)
	}
	return nil
}
