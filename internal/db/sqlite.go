package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // SQLite driver

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

// DB wraps the SQLite handle and associated metadata.
type DB struct {
	sql  *sql.DB
	path string
}

// Open initialises a SQLite database at the given path and returns a DB wrapper.
// The caller must Close it.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := ensureDirectory(path); err != nil {
		return nil, fmt.Errorf("create database directory: %w", storageErr(err))
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", storageErr(err))
	}

	// Prime the connection and ensure the database file is created.
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", storageErr(err))
	}

	if err := EnsurePerm0600(path); err != nil {
		handle.Close()
		return nil, storageErr(err)
	}

	d := &DB{sql: handle, path: path}
	if err := d.Migrate(context.Background()); err != nil {
		handle.Close()
		return nil, err
	}
	return d, nil
}

// Path returns the database file location.
func (d *DB) Path() string { return d.path }

// Close releases the database resources.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

func ensureDirectory(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return errors.New("database path must include a directory")
	}
	return os.MkdirAll(dir, 0o700)
}

// EnsurePerm0600 attempts to set the database file permissions to 0600 on Unix systems(the owner permission).
// Only the current owner of the sqlite db is allowed to read and write (ensured if Unix system)
func EnsurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod database: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id                 TEXT     PRIMARY KEY,
	site               TEXT     NOT NULL,
	username           TEXT     NOT NULL,
	encrypted_password BLOB     NOT NULL,
	iv                 BLOB     NOT NULL,
	pinned             INTEGER  NOT NULL DEFAULT 0,
	key_mode           TEXT     NOT NULL DEFAULT 'password',
	created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entries_site ON entries(site);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// Migrate ensures the entries and metadata tables exist.
func (d *DB) Migrate(ctx context.Context) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil: %w", apperrors.ErrStorageUnavailable)
	}
	if _, err := d.sql.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", storageErr(err))
	}
	return nil
}

func (d *DB) ready() error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("database handle is nil: %w", apperrors.ErrStorageUnavailable)
	}
	return nil
}

// storageErr tags a backend failure with ErrStorageUnavailable.
func storageErr(err error) error {
	if err == nil || errors.Is(err, apperrors.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
}
