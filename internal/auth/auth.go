// Package auth verifies bearer-token sessions issued by the storefront's
// hosted auth service. Token verification is local (shared HMAC secret),
// so a missing or expired session is an expected condition, not an
// outage.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgrijalva/jwt-go"
)

var ErrNoSession = errors.New("no authenticated session")

type Identity struct {
	ID    string
	Email string
	Admin bool
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Current parses and validates the token. Any defect (empty, expired,
// bad signature, missing subject) comes back as ErrNoSession so callers
// degrade to local-only behavior instead of branching on JWT internals.
func (v *Verifier) Current(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoSession
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrNoSession)
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return Identity{ID: sub, Email: email, Admin: role == "admin"}, nil
}
