package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	encryptedPrefix = "enc:"
	saltSize        = 16
	nonceSize       = 24
)

// ErrPassphraseRequired is returned when an encrypted entry is read without a passphrase.
var ErrPassphraseRequired = errors.New("token file entry is encrypted but no passphrase is configured")

type tokenFile struct {
	Salt    string            `json:"salt,omitempty"`
	Entries map[string]string `json:"entries"`
}

// FileStore keeps values in a JSON file with 0600 permissions. When a
// passphrase is configured, values are sealed with NaCl secretbox under a
// key derived by scrypt from the passphrase and a per-file salt.
type FileStore struct {
	fs         afero.Fs
	path       string
	passphrase string
	mu         sync.Mutex
}

func NewFileStore(fsys afero.Fs, path, passphrase string) *FileStore {
	return &FileStore{fs: fsys, path: path, passphrase: passphrase}
}

func (s *FileStore) Get(_ context.Context, service, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := tf.Entries[key(service, username)]
	if !ok {
		return "", ErrNotFound
	}
	if !strings.HasPrefix(v, encryptedPrefix) {
		return v, nil
	}
	return s.open(tf, strings.TrimPrefix(v, encryptedPrefix))
}

func (s *FileStore) Set(_ context.Context, service, username, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load()
	if err != nil {
		return err
	}

	stored := value
	if s.passphrase != "" && value != "" {
		sealed, err := s.seal(tf, value)
		if err != nil {
			return err
		}
		stored = encryptedPrefix + sealed
	}
	tf.Entries[key(service, username)] = stored

	return s.save(tf)
}

func (s *FileStore) load() (*tokenFile, error) {
	tf := &tokenFile{Entries: map[string]string{}}

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return tf, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(data) == 0 {
		return tf, nil
	}
	if err := json.Unmarshal(data, tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tf.Entries == nil {
		tf.Entries = map[string]string{}
	}
	return tf, nil
}

// save writes atomically: temp file in the same directory, then rename.
func (s *FileStore) save(tf *tokenFile) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".ptitcal-tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer s.fs.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := s.fs.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

func (s *FileStore) deriveKey(tf *tokenFile) (*[32]byte, error) {
	if tf.Salt == "" {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		tf.Salt = base64.StdEncoding.EncodeToString(salt)
	}
	salt, err := base64.StdEncoding.DecodeString(tf.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid token file salt: %w", err)
	}
	raw, err := scrypt.Key([]byte(s.passphrase), salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token file key: %w", err)
	}
	var k [32]byte
	copy(k[:], raw)
	return &k, nil
}

func (s *FileStore) seal(tf *tokenFile, value string) (string, error) {
	k, err := s.deriveKey(tf)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	box := secretbox.Seal(nonce[:], []byte(value), &nonce, k)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *FileStore) open(tf *tokenFile, sealed string) (string, error) {
	if s.passphrase == "" {
		return "", ErrPassphraseRequired
	}
	box, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(box) < nonceSize {
		return "", errors.New("malformed encrypted token entry")
	}
	if tf.Salt == "" {
		return "", errors.New("token file has encrypted entries but no salt")
	}
	k, err := s.deriveKey(tf)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, k)
	if !ok {
		return "", errors.New("failed to decrypt token entry: wrong passphrase?")
	}
	return string(plain), nil
}
