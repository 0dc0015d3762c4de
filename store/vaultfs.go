package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultExportName is the file name suggested for new exports.
const DefaultExportName = "password_vault_backup.json"

// MaxExportSize bounds how much ReadExport will load into memory.
const MaxExportSize = 32 << 20

// WriteExport persists an export document atomically with restrictive
// permissions. An existing file at path is replaced.
func WriteExport(path string, data []byte) error {
	if path == "" {
		return errors.New("export path not specified")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*.json")
	if err != nil {
		return fmt.Errorf("create temp export: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp export: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp export: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp export: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp export: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace export: %w", err)
	}

	return nil
}

// ReadExport loads an export document from disk.
func ReadExport(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxExportSize+1))
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if len(data) > MaxExportSize {
		return nil, fmt.Errorf("export %s exceeds %d bytes", path, MaxExportSize)
	}
	return data, nil
}
