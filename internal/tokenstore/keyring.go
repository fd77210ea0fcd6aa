package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore stores values in the OS credential vault (Windows Credential
// Manager, macOS Keychain, Secret Service on Linux).
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (*KeyringStore) Get(_ context.Context, service, username string) (string, error) {
	v, err := keyring.Get(service, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring entry %s: %w", service, err)
	}
	return v, nil
}

func (*KeyringStore) Set(_ context.Context, service, username, value string) error {
	if err := keyring.Set(service, username, value); err != nil {
		return fmt.Errorf("failed to write keyring entry %s: %w", service, err)
	}
	return nil
}
