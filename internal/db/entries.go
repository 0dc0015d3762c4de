package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// EntryRepository stores vault entries in the SQLite entries table.
type EntryRepository struct {
	db *DB
}

// NewEntryRepository returns an entry store over d.
func NewEntryRepository(d *DB) *EntryRepository {
	return &EntryRepository{db: d}
}

const selectEntryColumns = `SELECT id, site, username, encrypted_password, iv, pinned, key_mode FROM entries`

// Insert stores a new entry. An existing id yields ErrConflict.
func (r *EntryRepository) Insert(ctx context.Context, e vault.VaultEntry) error {
	if err := r.db.ready(); err != nil {
		return err
	}

	res, err := r.db.sql.ExecContext(ctx,
		`INSERT INTO entries (id, site, username, encrypted_password, iv, pinned, key_mode)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID.Key(), e.Site, e.Username, e.EncryptedPassword, e.IV, e.Pinned, string(modeOf(e)),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", storageErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert rows affected: %w", storageErr(err))
	}
	if n == 0 {
		return fmt.Errorf("insert entry %s: %w", e.ID, apperrors.ErrConflict)
	}
	return nil
}

// Update rewrites every field of an existing entry.
func (r *EntryRepository) Update(ctx context.Context, e vault.VaultEntry) error {
	if err := r.db.ready(); err != nil {
		return err
	}

	res, err := r.db.sql.ExecContext(ctx,
		`UPDATE entries
		    SET site = ?, username = ?, encrypted_password = ?, iv = ?, pinned = ?, key_mode = ?,
		        updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?`,
		e.Site, e.Username, e.EncryptedPassword, e.IV, e.Pinned, string(modeOf(e)), e.ID.Key(),
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", storageErr(err))
	}
	return requireAffected(res, "update", e.ID)
}

// Delete removes an entry. It returns ErrNotFound if nothing was deleted.
func (r *EntryRepository) Delete(ctx context.Context, id vault.EntryID) error {
	if err := r.db.ready(); err != nil {
		return err
	}

	res, err := r.db.sql.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id.Key())
	if err != nil {
		return fmt.Errorf("delete entry: %w", storageErr(err))
	}
	return requireAffected(res, "delete", id)
}

// Get returns one entry by id.
func (r *EntryRepository) Get(ctx context.Context, id vault.EntryID) (vault.VaultEntry, error) {
	if err := r.db.ready(); err != nil {
		return vault.VaultEntry{}, err
	}

	row := r.db.sql.QueryRowContext(ctx, selectEntryColumns+` WHERE id = ?`, id.Key())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return vault.VaultEntry{}, fmt.Errorf("entry %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return vault.VaultEntry{}, err
	}
	return e, nil
}

// ListAll returns all entries, pinned first, then by site and username.
func (r *EntryRepository) ListAll(ctx context.Context) ([]vault.VaultEntry, error) {
	if err := r.db.ready(); err != nil {
		return nil, err
	}

	rows, err := r.db.sql.QueryContext(ctx, selectEntryColumns+` ORDER BY pinned DESC, site, username, id`)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", storageErr(err))
	}
	defer rows.Close()

	var results []vault.VaultEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows: %w", storageErr(err))
	}
	return results, nil
}

// Clear deletes every entry.
func (r *EntryRepository) Clear(ctx context.Context) error {
	if err := r.db.ready(); err != nil {
		return err
	}
	if _, err := r.db.sql.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clear entries: %w", storageErr(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (vault.VaultEntry, error) {
	var (
		key  string
		mode string
		e    vault.VaultEntry
	)
	if err := row.Scan(&key, &e.Site, &e.Username, &e.EncryptedPassword, &e.IV, &e.Pinned, &mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan entry row: %w", storageErr(err))
	}

	id, err := vault.ParseEntryKey(key)
	if err != nil {
		return e, fmt.Errorf("corrupt entry id %q: %w", key, storageErr(err))
	}
	e.ID = id

	e.KeyMode, err = krypto.ParseKeyMode(mode)
	if err != nil {
		return e, fmt.Errorf("corrupt key mode for entry %s: %w", id, storageErr(err))
	}
	return e, nil
}

func requireAffected(res sql.Result, op string, id vault.EntryID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, storageErr(err))
	}
	if n == 0 {
		return fmt.Errorf("%s entry %s: %w", op, id, apperrors.ErrNotFound)
	}
	return nil
}

func modeOf(e vault.VaultEntry) krypto.KeyMode {
	if e.KeyMode == "" {
		return krypto.ModePassword
	}
	return e.KeyMode
}
