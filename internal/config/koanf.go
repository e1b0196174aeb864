// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/trackplane/config.yaml",
	"/etc/trackplane/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all built-in defaults. The service
// ports and rate-limit defaults match the deployed fleet topology:
// gateway on 3000, auth on 3001, device on 3002, location on 3003.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3003,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Host:               "0.0.0.0",
			Port:               3000,
			AuthURL:            "http://localhost:3001",
			DeviceURL:          "http://localhost:3002",
			LocationURL:        "http://localhost:3003",
			RateLimitReqs:      100,
			RateLimitWindow:    15 * time.Minute,
			BreakerMaxRequests: 3,
			BreakerInterval:    time.Minute,
			BreakerTimeout:     2 * time.Minute,
			ProxyTimeout:       30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/data/trackplane/positions",
			SyncWrites: true,
			InMemory:   false,
			OpTimeout:  5 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			TokenTTL:          24 * time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Hub: HubConfig{
			BroadcastBuffer:  256,
			ClientBuffer:     256,
			MaxMessageSize:   4096,
			WriteTimeout:     10 * time.Second,
			PongTimeout:      60 * time.Second,
			IngestRatePerSec: 0,
			IngestBurst:      10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, JWT_SECRET -> security.jwt_secret, ...
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Load is the canonical entry point for both binaries.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths are parsed as
// comma-separated slices when sourced from env vars.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices.
// Env vars come in as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so random environment noise cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Location service listener
		"http_host":             "server.host",
		"http_port":             "server.port",
		"http_read_timeout":     "server.read_timeout",
		"http_write_timeout":    "server.write_timeout",
		"http_shutdown_timeout": "server.shutdown_timeout",

		// Gateway
		"gateway_host":                 "gateway.host",
		"gateway_port":                 "gateway.port",
		"auth_service_url":             "gateway.auth_url",
		"device_service_url":           "gateway.device_url",
		"location_service_url":         "gateway.location_url",
		"gateway_rate_limit_requests":  "gateway.rate_limit_requests",
		"gateway_rate_limit_window":    "gateway.rate_limit_window",
		"gateway_breaker_max_requests": "gateway.breaker_max_requests",
		"gateway_breaker_interval":     "gateway.breaker_interval",
		"gateway_breaker_timeout":      "gateway.breaker_timeout",
		"gateway_proxy_timeout":        "gateway.proxy_timeout",
		"gateway_shutdown_timeout":     "gateway.shutdown_timeout",

		// Position store
		"store_path":        "store.path",
		"store_sync_writes": "store.sync_writes",
		"store_in_memory":   "store.in_memory",
		"store_op_timeout":  "store.op_timeout",

		// Security
		"jwt_secret":          "security.jwt_secret",
		"token_ttl":           "security.token_ttl",
		"rate_limit_requests": "security.rate_limit_requests",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		// Hub
		"hub_broadcast_buffer":    "hub.broadcast_buffer",
		"hub_client_buffer":       "hub.client_buffer",
		"hub_max_message_size":    "hub.max_message_size",
		"hub_write_timeout":       "hub.write_timeout",
		"hub_pong_timeout":        "hub.pong_timeout",
		"hub_ingest_rate_per_sec": "hub.ingest_rate_per_sec",
		"hub_ingest_burst":        "hub.ingest_burst",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
