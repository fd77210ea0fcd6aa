// Package tokenstore keeps the session's refresh token in secure storage.
//
// The session depends only on Store; the backend is chosen by configuration.
package tokenstore

//go:generate mockgen -source=store.go -destination=mock_tokenstore/mock_store.go -package=mock_tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"ptitcal/internal/config"
)

// ErrNotFound is returned by Get when nothing is stored under the key.
var ErrNotFound = errors.New("token not found")

// Store is a secure key/value service for refresh tokens. Set overwrites
// atomically and reports failures synchronously.
type Store interface {
	Get(ctx context.Context, service, username string) (string, error)
	Set(ctx context.Context, service, username, value string) error
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.TokenStoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", "keyring":
		return NewKeyringStore(), nil
	case "file":
		return NewFileStore(afero.NewOsFs(), cfg.File, cfg.Passphrase), nil
	case "redis":
		return NewRedisStoreFromURL(ctx, cfg.RedisURL)
	case "aws":
		return NewSecretsManagerStoreFromConfig(ctx, cfg.AWSRegion, cfg.AWSPrefix)
	default:
		return nil, fmt.Errorf("unknown token store backend %q", cfg.Backend)
	}
}

func key(service, username string) string {
	if username == "" {
		return service
	}
	return service + "/" + username
}
