// Package discovery loads an OpenID Connect provider metadata document.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const maxDocumentBytes = 1 << 20

// ErrMissingEndpoint is returned when the document lacks a required endpoint.
var ErrMissingEndpoint = errors.New("required endpoint missing")

// OpenIDConfig holds the provider endpoints used by the session.
// It is loaded once and never mutated.
type OpenIDConfig struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// Endpoint returns the oauth2 endpoint for this provider. The client id is
// sent in the request body since PTIT's client is public.
func (c OpenIDConfig) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   c.AuthorizationEndpoint,
		TokenURL:  c.TokenEndpoint,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// Error reports a failed discovery. Any Error is fatal to startup.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("discovery %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("discovery %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Load fetches and validates the discovery document at configURL.
func Load(ctx context.Context, client *http.Client, configURL string) (OpenIDConfig, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return OpenIDConfig{}, &Error{URL: configURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return OpenIDConfig{}, &Error{URL: configURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OpenIDConfig{}, &Error{URL: configURL, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return OpenIDConfig{}, &Error{URL: configURL, Err: fmt.Errorf("failed to read document: %w", err)}
	}

	var cfg OpenIDConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return OpenIDConfig{}, &Error{URL: configURL, Err: fmt.Errorf("failed to decode document: %w", err)}
	}

	if err := validateEndpoint("authorization_endpoint", cfg.AuthorizationEndpoint); err != nil {
		return OpenIDConfig{}, &Error{URL: configURL, Err: err}
	}
	if err := validateEndpoint("token_endpoint", cfg.TokenEndpoint); err != nil {
		return OpenIDConfig{}, &Error{URL: configURL, Err: err}
	}

	return cfg, nil
}

func validateEndpoint(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrMissingEndpoint, field)
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid %s %q", field, value)
	}
	return nil
}
