package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestCurrentValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":   "u1",
		"email": "budi@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	ident, err := v.Current(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", ident.ID)
	assert.Equal(t, "budi@example.com", ident.Email)
	assert.False(t, ident.Admin)
}

func TestCurrentAdminRole(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub":  "admin1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	ident, err := v.Current(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, ident.Admin)
}

func TestCurrentMissingToken(t *testing.T) {
	v := NewVerifier(testSecret)
	_, err := v.Current(context.Background(), "")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestCurrentExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	_, err := v.Current(context.Background(), token)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestCurrentWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, "other-secret", jwt.MapClaims{"sub": "u1"})
	_, err := v.Current(context.Background(), token)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestCurrentMissingSubject(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"email": "x@example.com"})
	_, err := v.Current(context.Background(), token)
	require.ErrorIs(t, err, ErrNoSession)
}
