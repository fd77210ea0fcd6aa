package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity holds claims read from the ID token (or the access token when the
// provider sent no ID token). Claims are not verified; they are only shown
// to the user.
type Identity struct {
	Subject           string
	Email             string
	Name              string
	PreferredUsername string
	ExpiresAt         time.Time
}

// Identity decodes the claims of the current token.
func (s *Session) Identity() (Identity, error) {
	s.mu.Lock()
	raw := ""
	if s.token != nil {
		raw = s.token.IDToken
		if raw == "" {
			raw = s.token.AccessToken
		}
	}
	s.mu.Unlock()

	if raw == "" {
		return Identity{}, ErrNotAuthenticated
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Identity{}, fmt.Errorf("token is not a JWT: %w", err)
	}

	var id Identity
	id.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	id.PreferredUsername, _ = claims["preferred_username"].(string)
	return id, nil
}
