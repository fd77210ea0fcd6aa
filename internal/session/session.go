// Package session implements the OAuth2 authorization-code session for the
// PTIT identity provider.
//
// A Session is Unauthenticated, PendingAuthorization (an authorization URL
// was issued), Authenticated (holds a token set, access token possibly
// stale) or Failed (a refresh was rejected). All transitions happen under one
// mutex, including the expiry check, the refresh grant and the persistence of
// the rotated refresh token, so concurrent callers never race a rotation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"ptitcal/internal/discovery"
	"ptitcal/internal/tokenstore"
)

// Keyspace used in the token store. Single account only.
const (
	Service  = "ptit-oauth2"
	Username = ""
)

const defaultExpiryMargin = 30 * time.Second

// Scopes requested on every authorization.
var Scopes = []string{"email", "offline_access", "openid", "profile"}

// Config holds the client settings for a Session.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// PKCE adds an S256 code challenge to authorization requests.
	PKCE bool
	// ExpiryMargin is subtracted from the token lifetime when deciding to refresh.
	ExpiryMargin time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
	Now          func() time.Time
}

// Status is a snapshot of the session for diagnostics.
type Status struct {
	State     State
	ExpiresAt time.Time
	LastError error
}

type pendingAuthorization struct {
	state    string
	verifier string
}

// Session owns the in-memory token set and its lifecycle.
type Session struct {
	oauth  *oauth2.Config
	store  tokenstore.Store
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
	margin time.Duration
	pkce   bool

	mu      sync.Mutex
	state   State
	token   *TokenSet
	pending *pendingAuthorization
	lastErr error
}

// New creates a session and, when the store holds a refresh token, refreshes
// it right away. A rejected refresh leaves the session Failed; it does not
// fail construction. Failing to read the store does.
func New(ctx context.Context, provider discovery.OpenIDConfig, store tokenstore.Store, cfg Config) (*Session, error) {
	if store == nil {
		return nil, errors.New("session: token store is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("session: client id is required")
	}
	if cfg.ExpiryMargin <= 0 {
		cfg.ExpiryMargin = defaultExpiryMargin
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), Scopes...),
		},
		store:  store,
		client: cfg.HTTPClient,
		logger: cfg.Logger,
		now:    cfg.Now,
		margin: cfg.ExpiryMargin,
		pkce:   cfg.PKCE,
		state:  StateUnauthenticated,
	}

	refreshToken, err := store.Get(ctx, Service, Username)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return nil, fmt.Errorf("failed to read stored refresh token: %w", err)
	}
	if refreshToken == "" {
		s.logger.Info("No stored refresh token, authorization required.")
		return s, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(ctx, refreshToken, "startup"); err != nil {
		s.logger.Warn("Stored refresh token could not be used, authorization required.", "error", err)
	}
	return s, nil
}

// Authorize returns ("", true) when the session is already authenticated,
// without side effects. Otherwise it starts a new authorization and returns
// the URL the user must visit.
func (s *Session) Authorize() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateAuthenticated {
		return "", true
	}

	p := &pendingAuthorization{state: uuid.NewString()}
	var opts []oauth2.AuthCodeOption
	if s.pkce {
		p.verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(p.verifier))
	}
	s.pending = p
	s.state = StatePendingAuthorization

	s.logger.Debug("Authorization started.", "redirect_url", s.oauth.RedirectURL, "pkce", s.pkce)
	return s.oauth.AuthCodeURL(p.state, opts...), false
}

// Exchange completes a pending authorization with the provider's redirect,
// given as the full redirect URL or its query string.
func (s *Session) Exchange(ctx context.Context, authorizationResponse string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return &AuthError{Phase: "exchange", Kind: ErrExchangeFailed, Err: ErrNoPendingAuthorization}
	}

	code, err := s.parseAuthorizationResponse(authorizationResponse)
	if err != nil {
		// A mismatched state may come from a stale browser tab; the pending
		// request stays usable.
		if !errors.Is(err, ErrStateMismatch) {
			s.pending = nil
			s.state = StateUnauthenticated
			s.lastErr = err
		}
		return &AuthError{Phase: "exchange", Kind: ErrExchangeFailed, Err: err}
	}

	var opts []oauth2.AuthCodeOption
	if s.pending.verifier != "" {
		opts = append(opts, oauth2.VerifierOption(s.pending.verifier))
	}
	s.pending = nil

	tok, err := s.oauth.Exchange(s.clientContext(ctx), code, opts...)
	if err != nil {
		s.state = StateUnauthenticated
		s.lastErr = err
		return &AuthError{Phase: "exchange", Kind: ErrExchangeFailed, Err: err}
	}

	ts := newTokenSet(tok, s.now())
	if ts.RefreshToken == "" {
		s.logger.Warn("Provider returned no refresh token; the session will not survive a restart.")
	} else if err := s.persist(ctx, ts.RefreshToken); err != nil {
		s.state = StateUnauthenticated
		s.lastErr = err
		return &AuthError{Phase: "exchange", Kind: ErrExchangeFailed, Err: err}
	}

	s.token = ts
	s.state = StateAuthenticated
	s.lastErr = nil
	s.logger.Info("Authorization completed.", "expires_at", ts.ExpiresAt())
	return nil
}

// Token returns a usable access token, refreshing it first when it is
// expired or about to expire. On any refresh failure the session leaves
// Authenticated and the error wraps ErrSessionExpired.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated || s.token == nil {
		return nil, &AuthError{Phase: "token", Kind: ErrSessionExpired, Err: ErrNotAuthenticated}
	}
	if !s.token.expired(s.now(), s.margin) {
		return s.token.oauth2Token(), nil
	}

	s.logger.Debug("Access token expired, refreshing.", "expired_at", s.token.ExpiresAt())
	if err := s.refreshLocked(ctx, s.token.RefreshToken, "refresh"); err != nil {
		return nil, err
	}
	return s.token.oauth2Token(), nil
}

// Status reports the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.state, LastError: s.lastErr}
	if s.token != nil {
		st.ExpiresAt = s.token.ExpiresAt()
	}
	return st
}

// Logout clears the stored refresh token and drops all in-memory tokens.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(ctx, Service, Username, ""); err != nil {
		return fmt.Errorf("failed to clear stored refresh token: %w", err)
	}
	s.token = nil
	s.pending = nil
	s.state = StateUnauthenticated
	s.lastErr = nil
	s.logger.Info("Logged out.")
	return nil
}

// refreshLocked runs a refresh-token grant. The new refresh token is
// persisted before the token set replaces the current one. s.mu must be held.
func (s *Session) refreshLocked(ctx context.Context, refreshToken, phase string) error {
	src := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		s.fail(err)
		return &AuthError{Phase: phase, Kind: ErrSessionExpired, Err: err}
	}

	ts := newTokenSet(tok, s.now())
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	if err := s.persist(ctx, ts.RefreshToken); err != nil {
		s.fail(err)
		return &AuthError{Phase: phase, Kind: ErrSessionExpired, Err: err}
	}

	s.token = ts
	s.state = StateAuthenticated
	s.lastErr = nil
	s.logger.Info("Access token refreshed.", "phase", phase, "expires_at", ts.ExpiresAt(), "rotated", ts.RefreshToken != refreshToken)
	return nil
}

func (s *Session) fail(err error) {
	s.token = nil
	s.pending = nil
	s.state = StateFailed
	s.lastErr = err
}

func (s *Session) persist(ctx context.Context, refreshToken string) error {
	if err := s.store.Set(ctx, Service, Username, refreshToken); err != nil {
		return fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return nil
}

func (s *Session) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

func (s *Session) parseAuthorizationResponse(response string) (string, error) {
	raw := strings.TrimSpace(response)
	if raw == "" {
		return "", errors.New("empty authorization response")
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	q, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("malformed authorization response: %w", err)
	}
	if e := q.Get("error"); e != "" {
		if desc := q.Get("error_description"); desc != "" {
			return "", fmt.Errorf("provider returned %s: %s", e, desc)
		}
		return "", fmt.Errorf("provider returned %s", e)
	}
	if q.Get("state") != s.pending.state {
		return "", ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("authorization response has no code")
	}
	return code, nil
}
