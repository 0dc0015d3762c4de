// Package errors holds the vault's error taxonomy. Callers wrap these
// sentinels with context and test for them with errors.Is.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable means the salt, header or entry store could not be
	// read or written. Fatal for the attempted operation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAuthenticationFailure means an AEAD tag did not verify: wrong key,
	// corrupted data or tampering. Never retried with a guessed key.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// ErrMalformedEntry means an imported record failed validation.
	ErrMalformedEntry = errors.New("malformed entry")

	// ErrDerivationFailure means key derivation could not run with the given
	// inputs or parameters.
	ErrDerivationFailure = errors.New("derivation failure")

	// ErrKeyModeMismatch means a record encrypted under one key mode was
	// presented with a key of the other mode.
	ErrKeyModeMismatch = fmt.Errorf("key mode mismatch: %w", ErrAuthenticationFailure)

	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an entry with the same id already exists.
	ErrConflict = errors.New("conflict")

	// ErrVaultLocked indicates an operation needed a key but none was supplied.
	ErrVaultLocked = errors.New("vault locked")

	// ErrInvalidInput indicates caller-supplied data is unusable.
	ErrInvalidInput = errors.New("invalid input")
)

// Wrap wraps an error with additional context while preserving the error chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
