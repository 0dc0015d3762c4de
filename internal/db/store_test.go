package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

func openTestStore(t *testing.T, backend string) *Store {
	t.Helper()
	s, err := OpenStore(backend, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, backend := range []string{BackendSQLite, BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			fn(t, openTestStore(t, backend))
		})
	}
}

func sampleEntry(id vault.EntryID, site, user string, pinned bool) vault.VaultEntry {
	return vault.VaultEntry{
		ID:                id,
		Site:              site,
		Username:          user,
		EncryptedPassword: make([]byte, krypto.TagSize+4),
		IV:                make([]byte, krypto.NonceSize),
		Pinned:            pinned,
		KeyMode:           krypto.ModePassword,
	}
}

func TestFileName(t *testing.T) {
	name, err := FileName("")
	require.NoError(t, err)
	assert.Equal(t, "vault.db", name)

	name, err = FileName("BOLT")
	require.NoError(t, err)
	assert.Equal(t, "vault.bolt", name)

	_, err = FileName("mongo")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRecords_InsertGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		e := sampleEntry(vault.NumericID(1700000000000), "example.com", "alice", false)
		e.KeyMode = krypto.ModeFallback
		e.EncryptedPassword[0] = 0xAB

		require.NoError(t, s.Records.Insert(ctx, e))

		got, err := s.Records.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e, got)
		assert.True(t, got.ID.IsNumeric())
	})
}

func TestRecords_NumericAndStringIDsDoNotCollide(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Records.Insert(ctx, sampleEntry(vault.NumericID(1), "a.com", "u", false)))
		require.NoError(t, s.Records.Insert(ctx, sampleEntry(vault.StringID("1"), "b.com", "u", false)))

		got, err := s.Records.Get(ctx, vault.StringID("1"))
		require.NoError(t, err)
		assert.Equal(t, "b.com", got.Site)
		assert.False(t, got.ID.IsNumeric())
	})
}

func TestRecords_InsertDuplicateConflicts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		e := sampleEntry(vault.StringID("dup"), "example.com", "alice", false)
		require.NoError(t, s.Records.Insert(ctx, e))

		err := s.Records.Insert(ctx, e)
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})
}

func TestRecords_UpdateDeleteMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		missing := sampleEntry(vault.StringID("nope"), "x", "y", false)

		assert.ErrorIs(t, s.Records.Update(ctx, missing), apperrors.ErrNotFound)
		assert.ErrorIs(t, s.Records.Delete(ctx, missing.ID), apperrors.ErrNotFound)
		_, err := s.Records.Get(ctx, missing.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestRecords_UpdateAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		e := sampleEntry(vault.StringID("e1"), "example.com", "alice", false)
		require.NoError(t, s.Records.Insert(ctx, e))

		e.Pinned = true
		e.Username = "bob"
		require.NoError(t, s.Records.Update(ctx, e))

		got, err := s.Records.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, got.Pinned)
		assert.Equal(t, "bob", got.Username)

		require.NoError(t, s.Records.Delete(ctx, e.ID))
		_, err = s.Records.Get(ctx, e.ID)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestRecords_ListAllOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		for _, e := range []vault.VaultEntry{
			sampleEntry(vault.StringID("1"), "zeta.com", "a", false),
			sampleEntry(vault.StringID("2"), "alpha.com", "b", false),
			sampleEntry(vault.StringID("3"), "mid.com", "a", true),
			sampleEntry(vault.StringID("4"), "alpha.com", "a", false),
		} {
			require.NoError(t, s.Records.Insert(ctx, e))
		}

		list, err := s.Records.ListAll(ctx)
		require.NoError(t, err)

		var ids []string
		for _, e := range list {
			ids = append(ids, e.ID.String())
		}
		assert.Equal(t, []string{"3", "4", "2", "1"}, ids)
	})
}

func TestRecords_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Records.Insert(ctx, sampleEntry(vault.StringID("a"), "a", "a", false)))
		require.NoError(t, s.Records.Clear(ctx))

		list, err := s.Records.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		// Clear leaves the store usable.
		require.NoError(t, s.Records.Insert(ctx, sampleEntry(vault.StringID("b"), "b", "b", false)))
	})
}

func TestMetadata_GetDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		v, err := s.Metadata.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, v)

		_, err = s.Metadata.SetIfAbsent(ctx, "k", []byte("one"))
		require.NoError(t, err)
		v, err = s.Metadata.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), v)

		require.NoError(t, s.Metadata.Delete(ctx, "k"))
		require.NoError(t, s.Metadata.Delete(ctx, "k"))
		v, err = s.Metadata.Get(ctx, "k")
		require.NoError(t, err)
		assert.Nil(t, v)

		// A deleted key can be set again.
		got, err := s.Metadata.SetIfAbsent(ctx, "k", []byte("two"))
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})
}

func TestMetadata_SetIfAbsentKeepsFirstValue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()

		got, err := s.Metadata.SetIfAbsent(ctx, "salt", []byte("first"))
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)

		got, err = s.Metadata.SetIfAbsent(ctx, "salt", []byte("second"))
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), got)
	})
}

func TestMetadata_SetIfAbsentConcurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		const n = 8

		var wg sync.WaitGroup
		results := make([][]byte, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = s.Metadata.SetIfAbsent(ctx, "salt", []byte{byte(i)})
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, results[0], results[i])
		}
	})
}

func TestReposOnNilHandleAreUnavailable(t *testing.T) {
	ctx := context.Background()
	var d *DB

	_, err := NewMetadataRepository(d).Get(ctx, "k")
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	_, err = NewEntryRepository(d).ListAll(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

	var b *BoltDB
	_, err = b.ListAll(ctx)
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestOpenStore_Path(t *testing.T) {
	dir := t.TempDir()
	for backend, name := range map[string]string{BackendSQLite: "vault.db", BackendBolt: "vault.bolt"} {
		s, err := OpenStore(backend, dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, name), s.Path)
		require.NoError(t, s.Close())
	}
}
