// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package models

import "time"

// APIResponse is the standardized envelope for error responses. Query
// and health endpoints carry a wire-compatibility contract and return
// their success payloads bare instead.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries a machine-readable category and a safe human-readable
// message. Internal failure causes are never placed here.
//
// Error codes:
//   - UNAUTHENTICATED: missing credential
//   - INVALID_CREDENTIAL: credential present but not verifiable
//   - VALIDATION_ERROR: malformed input shape
//   - STORAGE_FAILURE: durability layer unavailable or timed out
//   - NOT_FOUND: query target has no data
//   - ROUTING_NOT_FOUND: no route rule matches the request path
//   - BACKEND_UNAVAILABLE: matched backend unreachable or erroring
//   - RATE_LIMITED: caller over admission quota
//   - INTERNAL_ERROR: anything else
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error code constants used across services.
const (
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeInvalidCredential  = "INVALID_CREDENTIAL"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeStorageFailure     = "STORAGE_FAILURE"
	CodeNotFound           = "NOT_FOUND"
	CodeRoutingNotFound    = "ROUTING_NOT_FOUND"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// NewErrorResponse builds an error envelope with the current timestamp.
func NewErrorResponse(code, message string) *APIResponse {
	return &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &APIError{Code: code, Message: message},
	}
}
