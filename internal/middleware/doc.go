// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package middleware provides HTTP middleware shared by the location
// service and the gateway: request IDs, gzip compression, security
// headers, and Prometheus instrumentation.
package middleware
