// Package session supplies the bearer credential attached to backend calls.
// Issuing credentials is the job of an external collaborator; this package
// only holds them and refuses ones that have visibly expired.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoCredential = errors.New("no credential configured")
	ErrExpired      = errors.New("credential expired")
	// ErrUnreachable wraps a login that never got a response.
	ErrUnreachable = errors.New("login endpoint unreachable")
)

// Source returns a bearer token for the current session.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by sources that cache a token. Callers drop
// the cached token once the backend refuses it.
type Invalidator interface {
	Invalidate()
}

// Invalidate drops src's cached token if it keeps one.
func Invalidate(src Source) {
	if inv, ok := src.(Invalidator); ok {
		inv.Invalidate()
	}
}

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// Opaque tokens report ok == false.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether token carries an exp claim at or before now.
func Expired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	return ok && !now.Before(exp)
}

// Static is a fixed token, typically read from configuration.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredential
	}
	if Expired(string(s), time.Now()) {
		return "", ErrExpired
	}
	return string(s), nil
}
