package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// Bucket names
var (
	entriesBucket  = []byte("entries")
	metadataBucket = []byte("metadata")
)

// BoltDB is a single-file vault backend built on bbolt. It serves both the
// entry and the metadata interfaces.
type BoltDB struct {
	db   *bbolt.DB
	path string
}

// OpenBolt opens or creates a bbolt vault file at path.
func OpenBolt(path string) (*BoltDB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := ensureDirectory(path); err != nil {
		return nil, fmt.Errorf("create database directory: %w", storageErr(err))
	}

	handle, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", storageErr(err))
	}

	err = handle.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, metadataBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		handle.Close()
		return nil, storageErr(err)
	}

	if err := EnsurePerm0600(path); err != nil {
		handle.Close()
		return nil, storageErr(err)
	}
	return &BoltDB{db: handle, path: path}, nil
}

// Path returns the database file location.
func (b *BoltDB) Path() string { return b.path }

// Close releases the file lock held by bbolt.
func (b *BoltDB) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *BoltDB) ready() error {
	if b == nil || b.db == nil {
		return fmt.Errorf("database handle is nil: %w", apperrors.ErrStorageUnavailable)
	}
	return nil
}

// boltEntry is the JSON document stored per entry.
type boltEntry struct {
	Site              string         `json:"site"`
	Username          string         `json:"username"`
	EncryptedPassword []byte         `json:"encryptedPassword"`
	IV                []byte         `json:"iv"`
	Pinned            bool           `json:"pinned"`
	KeyMode           krypto.KeyMode `json:"keyMode"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func encodeBoltEntry(e vault.VaultEntry) ([]byte, error) {
	data, err := json.Marshal(boltEntry{
		Site:              e.Site,
		Username:          e.Username,
		EncryptedPassword: e.EncryptedPassword,
		IV:                e.IV,
		Pinned:            e.Pinned,
		KeyMode:           modeOf(e),
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode entry %s: %w", e.ID, err)
	}
	return data, nil
}

func decodeBoltEntry(key, value []byte) (vault.VaultEntry, error) {
	id, err := vault.ParseEntryKey(string(key))
	if err != nil {
		return vault.VaultEntry{}, fmt.Errorf("corrupt entry id %q: %w", key, storageErr(err))
	}
	var rec boltEntry
	if err := json.Unmarshal(value, &rec); err != nil {
		return vault.VaultEntry{}, fmt.Errorf("corrupt entry %s: %w", id, storageErr(err))
	}
	mode, err := krypto.ParseKeyMode(string(rec.KeyMode))
	if err != nil {
		return vault.VaultEntry{}, fmt.Errorf("corrupt key mode for entry %s: %w", id, storageErr(err))
	}
	return vault.VaultEntry{
		ID:                id,
		Site:              rec.Site,
		Username:          rec.Username,
		EncryptedPassword: rec.EncryptedPassword,
		IV:                rec.IV,
		Pinned:            rec.Pinned,
		KeyMode:           mode,
	}, nil
}

// Insert stores a new entry. An existing id yields ErrConflict.
func (b *BoltDB) Insert(ctx context.Context, e vault.VaultEntry) error {
	if err := b.ready(); err != nil {
		return err
	}
	data, err := encodeBoltEntry(e)
	if err != nil {
		return err
	}
	key := []byte(e.ID.Key())
	return b.update(ctx, func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(entriesBucket)
		if bkt.Get(key) != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, apperrors.ErrConflict)
		}
		return bkt.Put(key, data)
	})
}

// Update rewrites every field of an existing entry.
func (b *BoltDB) Update(ctx context.Context, e vault.VaultEntry) error {
	if err := b.ready(); err != nil {
		return err
	}
	data, err := encodeBoltEntry(e)
	if err != nil {
		return err
	}
	key := []byte(e.ID.Key())
	return b.update(ctx, func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(entriesBucket)
		if bkt.Get(key) == nil {
			return fmt.Errorf("update entry %s: %w", e.ID, apperrors.ErrNotFound)
		}
		return bkt.Put(key, data)
	})
}

// Delete removes an entry. It returns ErrNotFound if nothing was deleted.
func (b *BoltDB) Delete(ctx context.Context, id vault.EntryID) error {
	if err := b.ready(); err != nil {
		return err
	}
	key := []byte(id.Key())
	return b.update(ctx, func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(entriesBucket)
		if bkt.Get(key) == nil {
			return fmt.Errorf("delete entry %s: %w", id, apperrors.ErrNotFound)
		}
		return bkt.Delete(key)
	})
}

// Get returns one entry by id.
func (b *BoltDB) Get(ctx context.Context, id vault.EntryID) (vault.VaultEntry, error) {
	if err := b.ready(); err != nil {
		return vault.VaultEntry{}, err
	}
	var out vault.VaultEntry
	key := []byte(id.Key())
	err := b.view(ctx, func(tx *bbolt.Tx) error {
		value := tx.Bucket(entriesBucket).Get(key)
		if value == nil {
			return fmt.Errorf("entry %s: %w", id, apperrors.ErrNotFound)
		}
		e, err := decodeBoltEntry(key, value)
		if err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// ListAll returns all entries, pinned first, then by site and username.
func (b *BoltDB) ListAll(ctx context.Context) ([]vault.VaultEntry, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	var results []vault.VaultEntry
	err := b.view(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(k, v []byte) error {
			e, err := decodeBoltEntry(k, v)
			if err != nil {
				return err
			}
			results = append(results, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEntries(results)
	return results, nil
}

// Clear deletes every entry.
func (b *BoltDB) Clear(ctx context.Context) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.update(ctx, func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(entriesBucket)
		return err
	})
}

// MetadataGet returns the value stored under key, or nil, nil if there is none.
func (b *BoltDB) MetadataGet(ctx context.Context, key string) ([]byte, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.view(ctx, func(tx *bbolt.Tx) error {
		if v := tx.Bucket(metadataBucket).Get([]byte(key)); v != nil {
			// bbolt values are only valid inside the transaction.
			out = append([]byte{}, v...)
		}
		return nil
	})
	return out, err
}

// MetadataSetIfAbsent inserts value unless key exists and returns the stored value.
func (b *BoltDB) MetadataSetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.update(ctx, func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(metadataBucket)
		if v := bkt.Get([]byte(key)); v != nil {
			out = append([]byte{}, v...)
			return nil
		}
		out = append([]byte{}, value...)
		return bkt.Put([]byte(key), out)
	})
	return out, err
}

// MetadataDelete removes key. Deleting a missing key is not an error.
func (b *BoltDB) MetadataDelete(ctx context.Context, key string) error {
	if err := b.ready(); err != nil {
		return err
	}
	return b.update(ctx, func(tx *bbolt.Tx) error {
		return tx.Bucket(metadataBucket).Delete([]byte(key))
	})
}

func (b *BoltDB) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return boltErr(b.db.Update(fn))
}

func (b *BoltDB) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return boltErr(b.db.View(fn))
}

// boltErr leaves domain errors alone and tags everything else as a storage failure.
func boltErr(err error) error {
	if err == nil ||
		apperrors.Is(err, apperrors.ErrNotFound) ||
		apperrors.Is(err, apperrors.ErrConflict) ||
		apperrors.Is(err, apperrors.ErrStorageUnavailable) {
		return err
	}
	return storageErr(err)
}

func sortEntries(entries []vault.VaultEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		if a.Site != b.Site {
			return a.Site < b.Site
		}
		if a.Username != b.Username {
			return a.Username < b.Username
		}
		return strings.Compare(a.ID.Key(), b.ID.Key()) < 0
	})
}

// BoltMetadata adapts a BoltDB to the metadata store interface.
type BoltMetadata struct {
	b *BoltDB
}

func (m BoltMetadata) Get(ctx context.Context, key string) ([]byte, error) {
	return m.b.MetadataGet(ctx, key)
}

func (m BoltMetadata) SetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	return m.b.MetadataSetIfAbsent(ctx, key, value)
}

func (m BoltMetadata) Delete(ctx context.Context, key string) error {
	return m.b.MetadataDelete(ctx, key)
}
