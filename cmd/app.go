package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/urfave/cli/v2"

	"ptitcal/internal/config"
	"ptitcal/internal/discovery"
	"ptitcal/internal/ptit"
	"ptitcal/internal/session"
	"ptitcal/internal/tokenstore"
)

// env is what every command needs: config, logger and the shared HTTP client.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	return &env{cfg: cfg, logger: logger, client: cfg.Transport.HTTPClient()}, nil
}

// openSession runs discovery, opens the token store and restores the session.
func (e *env) openSession(ctx context.Context) (*session.Session, error) {
	provider, err := discovery.Load(ctx, e.client, e.cfg.DiscoveryURL)
	if err != nil {
		return nil, err
	}

	store, err := tokenstore.Open(ctx, e.cfg.TokenStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	e.logger.Debug("Token store opened.", "backend", e.cfg.TokenStore.Backend)

	return session.New(ctx, provider, store, session.Config{
		ClientID:     e.cfg.ClientID,
		RedirectURL:  e.cfg.RedirectURL,
		PKCE:         e.cfg.UsePKCE(),
		ExpiryMargin: e.cfg.ExpiryMargin,
		HTTPClient:   e.client,
		Logger:       e.logger,
	})
}

// fetcher opens an authenticated session and returns an event fetcher on it.
func (e *env) fetcher(ctx context.Context) (*ptit.Fetcher, error) {
	sess, err := e.openSession(ctx)
	if err != nil {
		return nil, err
	}
	if st := sess.Status(); st.State != session.StateAuthenticated {
		if st.LastError != nil {
			return nil, fmt.Errorf("%w: %v", session.ErrSessionExpired, st.LastError)
		}
		return nil, fmt.Errorf("%w: run 'ptitcal login' first", session.ErrNotAuthenticated)
	}
	return ptit.NewFetcher(e.cfg.BaseURL, sess, e.client, e.logger), nil
}
