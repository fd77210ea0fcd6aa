package session

import (
	"encoding/json"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// State is the authentication state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StatePendingAuthorization
	StateAuthenticated
	// StateFailed behaves like StateUnauthenticated but records that the
	// provider rejected a refresh.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePendingAuthorization:
		return "pending_authorization"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// assumedLifetime stands in for expires_in when the provider omits it.
const assumedLifetime = 5 * time.Minute

// TokenSet is the token material held in memory. Only RefreshToken is ever
// persisted.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	IDToken      string
	ExpiresIn    time.Duration
	AcquiredAt   time.Time
}

func newTokenSet(tok *oauth2.Token, now time.Time) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    expiresIn(tok),
		AcquiredAt:   now,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = id
	}
	return ts
}

// ExpiresAt is AcquiredAt + ExpiresIn, or the zero time when the provider
// sent no lifetime.
func (t *TokenSet) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.AcquiredAt.Add(t.ExpiresIn)
}

func (t *TokenSet) expired(now time.Time, margin time.Duration) bool {
	if t.AccessToken == "" {
		return true
	}
	lifetime := t.ExpiresIn
	if lifetime <= 0 {
		lifetime = assumedLifetime
	}
	return !now.Before(t.AcquiredAt.Add(lifetime - margin))
}

func (t *TokenSet) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		Expiry:      t.ExpiresAt(),
	}
}

// expiresIn reads the raw expires_in field; oauth2 only exposes the derived
// wall-clock Expiry.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry).Round(time.Second)
	}
	return 0
}
