// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithKoanf()
	require.NoError(t, err)

	assert.Equal(t, 3003, cfg.Server.Port)
	assert.Equal(t, 3000, cfg.Gateway.Port)
	assert.Equal(t, "http://localhost:3001", cfg.Gateway.AuthURL)
	assert.Equal(t, "http://localhost:3002", cfg.Gateway.DeviceURL)
	assert.Equal(t, "http://localhost:3003", cfg.Gateway.LocationURL)
	assert.Equal(t, 100, cfg.Gateway.RateLimitReqs)
	assert.Equal(t, 15*time.Minute, cfg.Gateway.RateLimitWindow)
	assert.Equal(t, 24*time.Hour, cfg.Security.TokenTTL)
	assert.Equal(t, 256, cfg.Hub.BroadcastBuffer)
	assert.True(t, cfg.Store.SyncWrites)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "4100")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("LOCATION_SERVICE_URL", "http://location:9000")
	t.Setenv("STORE_OP_TIMEOUT", "2s")

	cfg, err := LoadWithKoanf()
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "test-secret", cfg.Security.JWTSecret)
	assert.Equal(t, "http://location:9000", cfg.Gateway.LocationURL)
	assert.Equal(t, 2*time.Second, cfg.Store.OpTimeout)
}

func TestEnvCORSOriginsSplit(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadWithKoanf()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Security.CORSOrigins)
}

func TestUnmappedEnvVarsIgnored(t *testing.T) {
	t.Setenv("RANDOM_UNRELATED_VAR", "whatever")

	_, err := LoadWithKoanf()
	assert.NoError(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 5005\ngateway:\n  rate_limit_requests: 7\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadWithKoanf()
	require.NoError(t, err)

	assert.Equal(t, 5005, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Gateway.RateLimitReqs)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingStorePath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())

	cfg.Store.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.OpTimeout = 0
	assert.Error(t, cfg.Validate())
}
