// Package sessionstore keeps the auth session in the local metadata store,
// sealed with AES-256-GCM under a device key.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/santinotanus/medtrace/internal/client/models"
	"github.com/santinotanus/medtrace/internal/client/repositories/metadata"
	"github.com/santinotanus/medtrace/internal/common"
	"github.com/santinotanus/medtrace/internal/cryptox"
	"github.com/santinotanus/medtrace/internal/filex"
)

const sessionKey = "session"

var ErrBadKeyFile = errors.New("key file has unexpected size")

// Store implements backend.SessionStorage.
type Store struct {
	repo metadata.Repository
	key  []byte
}

func New(repo metadata.Repository, key []byte) *Store {
	return &Store{repo: repo, key: key}
}

// Load returns the persisted session, or nil when none is stored.
func (s *Store) Load(ctx context.Context) (*models.Session, error) {
	blob, err := s.repo.Get(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, nil
	}

	var session models.Session
	if err := cryptox.Open(blob, s.key, &session); err != nil {
		return nil, fmt.Errorf("failed to open stored session: %w", errors.Join(common.ErrLocalDataNotAvailable, err))
	}
	return &session, nil
}

// Save seals and stores session. A nil session clears the store.
func (s *Store) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return s.Clear(ctx)
	}
	blob, err := cryptox.Seal(session, s.key)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	return s.repo.Set(ctx, sessionKey, blob)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, sessionKey)
}

// LoadOrCreateKey reads the device key at path, creating it with 0600
// permissions on first run.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != cryptox.KeySize {
			return nil, fmt.Errorf("%s: %w", path, ErrBadKeyFile)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := filex.EnsureParentDir(path); err != nil {
		return nil, err
	}

	key = common.GenerateRandByteArray(cryptox.KeySize)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Write(key); err != nil {
		return nil, err
	}
	return key, nil
}
