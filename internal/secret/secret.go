// Package secret persists the OpenAI API key used by the AI date guess.
package secret

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tartampluch/photo-time-sleuth/internal/config"
	"github.com/zalando/go-keyring"
)

var (
	ErrNoKey    = errors.New(config.ErrNoKey)
	ErrKeyEmpty = errors.New(config.ErrKeyEmpty)
)

// KeyStore loads and saves a single API key.
// Load returns ErrNoKey when nothing is stored.
type KeyStore interface {
	Load() (string, error)
	Save(key string) error
}

// New builds the key store chain for the configured backend. The environment
// variable always wins over stored keys.
func New(s config.Settings) KeyStore {
	file := &FileStore{Path: s.APIKeyPath()}

	var stored KeyStore = file
	if s.KeyBackend != config.KeyBackendFile {
		stored = &Fallback{
			Primary:   &KeyringStore{Service: config.KeyringService, User: config.KeyringUser},
			Secondary: file,
		}
	}
	return &EnvOverride{Var: config.OpenAIKeyEnv, Store: stored}
}

// -----------------------------------------------------------------------------
// Keyring
// -----------------------------------------------------------------------------

// KeyringStore keeps the key in the OS credential store.
type KeyringStore struct {
	Service string
	User    string
}

func (k *KeyringStore) Load() (string, error) {
	key, err := keyring.Get(k.Service, k.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoKey
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrKeyRead, err)
	}
	if key = strings.TrimSpace(key); key == "" {
		return "", ErrNoKey
	}
	return key, nil
}

func (k *KeyringStore) Save(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyEmpty
	}
	if err := keyring.Set(k.Service, k.User, key); err != nil {
		return fmt.Errorf("%s: %w", config.ErrKeyWrite, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// File
// -----------------------------------------------------------------------------

// FileStore keeps the key in a plain text file readable by the owner only.
type FileStore struct {
	Path string
}

func (f *FileStore) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoKey
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrKeyRead, err)
	}

	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoKey
	}
	return key, nil
}

func (f *FileStore) Save(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyEmpty
	}
	if err := os.WriteFile(f.Path, []byte(key), config.FilePermUserRW); err != nil {
		return fmt.Errorf("%s: %w", config.ErrKeyWrite, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Composition
// -----------------------------------------------------------------------------

// Fallback uses Primary and switches to Secondary when Primary has no key or
// cannot be reached (headless Linux without a secret service, for instance).
type Fallback struct {
	Primary   KeyStore
	Secondary KeyStore
}

func (f *Fallback) Load() (string, error) {
	key, err := f.Primary.Load()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoKey) {
		slog.Warn(config.MsgKeyFallback, config.LogKeyComponent, config.CompSecret, config.LogKeyError, err)
	}
	return f.Secondary.Load()
}

func (f *Fallback) Save(key string) error {
	err := f.Primary.Save(key)
	if err == nil || errors.Is(err, ErrKeyEmpty) {
		return err
	}
	slog.Warn(config.MsgKeyFallback, config.LogKeyComponent, config.CompSecret, config.LogKeyError, err)
	return f.Secondary.Save(key)
}

// EnvOverride returns the key from the environment variable Var when it is
// set, and delegates to Store otherwise. Save always goes to Store.
type EnvOverride struct {
	Var   string
	Store KeyStore
}

func (e *EnvOverride) Load() (string, error) {
	if v := strings.TrimSpace(os.Getenv(e.Var)); v != "" {
		return v, nil
	}
	return e.Store.Load()
}

func (e *EnvOverride) Save(key string) error {
	return e.Store.Save(key)
}
