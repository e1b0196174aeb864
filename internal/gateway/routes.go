// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package gateway implements the request-routing front door. It matches
// request paths against a fixed rule table, rewrites the prefix, and
// proxies to the owning backend behind a per-backend circuit breaker.
package gateway

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/trackplane/internal/config"
)

// RouteRule binds a public path prefix to a backend service. The prefix
// is replaced with Rewrite before the request is forwarded.
type RouteRule struct {
	Backend    string
	PathPrefix string
	Rewrite    string
	Target     *url.URL
}

// buildRoutes derives the immutable rule table from the configured
// backend URLs. Longer prefixes are listed first so matching can stop at
// the first hit.
func buildRoutes(cfg *config.GatewayConfig) ([]RouteRule, error) {
	specs := []struct {
		backend string
		prefix  string
		rawURL  string
	}{
		{"location", "/api/locations", cfg.LocationURL},
		{"device", "/api/devices", cfg.DeviceURL},
		{"auth", "/api/auth", cfg.AuthURL},
	}

	rules := make([]RouteRule, 0, len(specs))
	for _, spec := range specs {
		if spec.rawURL == "" {
			return nil, fmt.Errorf("gateway: no URL configured for %s backend", spec.backend)
		}
		target, err := url.Parse(spec.rawURL)
		if err != nil {
			return nil, fmt.Errorf("gateway: invalid URL for %s backend: %w", spec.backend, err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("gateway: URL for %s backend must be absolute, got %q", spec.backend, spec.rawURL)
		}
		rules = append(rules, RouteRule{
			Backend:    spec.backend,
			PathPrefix: spec.prefix,
			Rewrite:    "/api",
			Target:     target,
		})
	}
	return rules, nil
}

// matches reports whether the path falls under the rule's prefix at a
// segment boundary. "/api/locationsfoo" must not match "/api/locations".
func (r *RouteRule) matches(path string) bool {
	if !strings.HasPrefix(path, r.PathPrefix) {
		return false
	}
	rest := path[len(r.PathPrefix):]
	return rest == "" || strings.HasPrefix(rest, "/")
}

// rewritePath replaces the matched prefix with the rewrite target.
func (r *RouteRule) rewritePath(path string) string {
	return r.Rewrite + path[len(r.PathPrefix):]
}
