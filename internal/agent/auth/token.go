// Package auth inspects the access tokens the Dentread login endpoint issues.
//
// The agent never holds the signing key, so tokens are parsed without
// verification. The server stays authoritative; these helpers only let the
// agent warn early about a token that will be rejected.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrOpaqueToken  = errors.New("token is not a JWT")
	ErrNoExpiry     = errors.New("token carries no exp claim")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the subset of the access token the agent reads.
type Claims struct {
	jwt.RegisteredClaims
	UserID any `json:"user_id,omitempty"`
}

var parser = jwt.NewParser()

// ExpiresAt returns the exp claim of an access token.
func ExpiresAt(token string) (time.Time, error) {
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, ErrOpaqueToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// CheckExpiry returns ErrTokenExpired when the token's exp is not after now.
// Opaque tokens and tokens without exp are reported with their own errors.
func CheckExpiry(token string, now time.Time) error {
	exp, err := ExpiresAt(token)
	if err != nil {
		return err
	}
	if !now.Before(exp) {
		return ErrTokenExpired
	}
	return nil
}
