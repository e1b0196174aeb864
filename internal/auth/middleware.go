// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package auth

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/models"
)

type contextKey string

const identityContextKey contextKey = "trackplane.identity"

// IdentityFromContext returns the authenticated identity stored by the
// middleware, if any.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(models.Identity)
	return id, ok
}

// ContextWithIdentity stores an identity in the context. Exported for tests
// and for handlers that authenticate out of band.
func ContextWithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// ExtractToken pulls the bearer token from the Authorization header, falling
// back to the token query parameter for websocket clients that cannot set
// headers.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimPrefix(header, "Bearer ")
		}
		return header
	}
	return r.URL.Query().Get("token")
}

// Middleware enforces token authentication on the wrapped handler. Requests
// without a credential receive 401, requests with an invalid credential
// receive 403.
func Middleware(manager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized,
					models.CodeUnauthenticated, "Authentication required")
				return
			}

			claims, err := manager.ValidateToken(tokenString)
			if err != nil {
				logging.Debug().
					Str("remote_addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Err(err).
					Msg("Rejected invalid token")
				writeAuthError(w, http.StatusForbidden,
					models.CodeInvalidCredential, "Invalid or expired token")
				return
			}

			ctx := ContextWithIdentity(r.Context(), claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := models.NewErrorResponse(code, message)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode auth error response")
	}
}
