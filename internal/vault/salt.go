package vault

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/logging"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// SaltStore owns the vault's single key-derivation salt.
type SaltStore struct {
	mu     sync.Mutex
	meta   MetadataStore
	logger logging.Logger
}

// NewSaltStore returns a SaltStore persisting into meta.
func NewSaltStore(meta MetadataStore, logger logging.Logger) *SaltStore {
	return &SaltStore{meta: meta, logger: logger}
}

// GetOrCreateSalt returns the persisted salt, creating it on first use.
// There is no fallback to an unpersisted salt: if the store cannot be read or
// written the call fails with ErrStorageUnavailable.
func (s *SaltStore) GetOrCreateSalt(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.meta.Get(ctx, SaltKey)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", storageErr(err))
	}
	if existing != nil {
		return checkSalt(existing)
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrDerivationFailure, err)
	}

	stored, err := s.meta.SetIfAbsent(ctx, SaltKey, salt)
	if err != nil {
		return nil, fmt.Errorf("persist salt: %w", storageErr(err))
	}
	if bytes.Equal(stored, salt) {
		s.logger.Info(ctx, "vault salt created", "bytes", len(salt))
	} else {
		s.logger.Warn(ctx, "vault salt created concurrently; using stored value")
	}
	return checkSalt(stored)
}

// Reset removes the salt. Every entry encrypted under a key derived from it
// becomes undecryptable, so only a full vault reset may call this.
func (s *SaltStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.meta.Delete(ctx, SaltKey); err != nil {
		return fmt.Errorf("delete salt: %w", storageErr(err))
	}
	return nil
}

func checkSalt(salt []byte) ([]byte, error) {
	if len(salt) != krypto.SaltLengthBytes {
		return nil, fmt.Errorf("%w: stored salt has length %d", apperrors.ErrStorageUnavailable, len(salt))
	}
	out := make([]byte, len(salt))
	copy(out, salt)
	return out, nil
}

// storageErr makes sure a backend failure carries ErrStorageUnavailable.
func storageErr(err error) error {
	if apperrors.Is(err, apperrors.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
}
