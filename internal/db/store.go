package db

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
)

// Backend names accepted by OpenStore.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Store bundles the two persistence interfaces of one opened vault file.
type Store struct {
	Records  vault.RecordStore
	Metadata vault.MetadataStore
	Path     string

	closer io.Closer
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// FileName returns the vault file name used for backend inside a vault directory.
func FileName(backend string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSQLite:
		return "vault.db", nil
	case BackendBolt:
		return "vault.bolt", nil
	default:
		return "", fmt.Errorf("%w: unknown store backend %q", apperrors.ErrInvalidInput, backend)
	}
}

// OpenStore opens the vault file for backend inside dir.
func OpenStore(backend, dir string) (*Store, error) {
	name, err := FileName(backend)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)

	if name == "vault.bolt" {
		b, err := OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return &Store{Records: b, Metadata: BoltMetadata{b: b}, Path: b.Path(), closer: b}, nil
	}

	d, err := Open(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		Records:  NewEntryRepository(d),
		Metadata: NewMetadataRepository(d),
		Path:     d.Path(),
		closer:   d,
	}, nil
}
