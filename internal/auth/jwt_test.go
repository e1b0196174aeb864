// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/trackplane/internal/config"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret: "test-secret-key",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	_, err := NewJWTManager(&config.SecurityConfig{JWTSecret: ""})
	assert.Error(t, err)
}

func TestNewJWTManagerDefaultsTTL(t *testing.T) {
	m, err := NewJWTManager(&config.SecurityConfig{JWTSecret: "s"})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, m.TokenTTL())
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := newTestManager(t)

	token, err := m.GenerateToken("device-42", "user")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "device-42", claims.ID)
	assert.Equal(t, "user", claims.Role)

	identity := claims.Identity()
	assert.Equal(t, "device-42", identity.ID)
	assert.Equal(t, "user", identity.Role)
}

func TestValidateTokenRejectsEmpty(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t)

	other, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret: "different-secret",
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)

	token, err := other.GenerateToken("device-1", "user")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := newTestManager(t)

	claims := &Claims{
		ID:   "device-1",
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret-key"))
	require.NoError(t, err)

	_, err = m.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ID: "device-1"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
