package session

import (
	"errors"
	"fmt"
)

var (
	// ErrExchangeFailed marks a failed authorization-code exchange. The
	// caller should start over with Authorize.
	ErrExchangeFailed = errors.New("authorization exchange failed")
	// ErrSessionExpired marks a session that can no longer produce access
	// tokens. The caller should start over with Authorize.
	ErrSessionExpired = errors.New("session expired, authorization required")

	ErrNoPendingAuthorization = errors.New("no authorization in progress")
	ErrNotAuthenticated       = errors.New("not authenticated")
	ErrStateMismatch          = errors.New("authorization response state does not match the request")
)

// AuthError reports an authentication failure. Kind is ErrExchangeFailed or
// ErrSessionExpired; Err is the underlying cause, e.g. *oauth2.RetrieveError.
type AuthError struct {
	Phase string
	Kind  error
	Err   error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth %s: %v", e.Phase, e.Kind)
	}
	return fmt.Sprintf("auth %s: %v: %v", e.Phase, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
