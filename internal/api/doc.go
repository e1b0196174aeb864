// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

// Package api provides the location service's HTTP surface: the query
// endpoints, the websocket ingestion endpoint, and operational endpoints
// for health and metrics. Routing uses Chi with middleware from the Chi
// ecosystem for CORS and rate limiting.
package api
