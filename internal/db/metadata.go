package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MetadataRepository is the SQLite key/value store for vault metadata.
type MetadataRepository struct {
	db *DB
}

// NewMetadataRepository returns a metadata store over d.
func NewMetadataRepository(d *DB) *MetadataRepository {
	return &MetadataRepository{db: d}
}

// Get returns the value stored under key, or nil, nil if there is none.
func (r *MetadataRepository) Get(ctx context.Context, key string) ([]byte, error) {
	if err := r.db.ready(); err != nil {
		return nil, err
	}
	var value []byte
	err := r.db.sql.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metadata[%s]: %w", key, storageErr(err))
	}
	return value, nil
}

// SetIfAbsent inserts value unless key exists and returns whatever is stored
// under key once the transaction commits.
func (r *MetadataRepository) SetIfAbsent(ctx context.Context, key string, value []byte) ([]byte, error) {
	if err := r.db.ready(); err != nil {
		return nil, err
	}

	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin metadata tx: %w", storageErr(err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		key, value,
	); err != nil {
		return nil, fmt.Errorf("insert metadata[%s]: %w", key, storageErr(err))
	}

	var stored []byte
	if err := tx.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&stored); err != nil {
		return nil, fmt.Errorf("read back metadata[%s]: %w", key, storageErr(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit metadata tx: %w", storageErr(err))
	}
	return stored, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *MetadataRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.ready(); err != nil {
		return err
	}
	if _, err := r.db.sql.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete metadata[%s]: %w", key, storageErr(err))
	}
	return nil
}
