package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

const (
	// SaltLengthBytes is the enforced vault salt length in bytes.
	SaltLengthBytes = 16
	// KeyLengthBytes is the derived key length (AES-256 / ChaCha20).
	KeyLengthBytes = 32
	// DefaultIterations is the PBKDF2 work factor used for new vaults.
	DefaultIterations = 100_000
	// MinIterations rejects configurations too weak to be worth deriving.
	MinIterations = 1_000

	// KDFName and KDFHash are recorded in the vault header.
	KDFName = "pbkdf2"
	KDFHash = "sha256"
)

// PBKDF2Params captures tunable parameters for PBKDF2-HMAC-SHA256.
type PBKDF2Params struct {
	Iterations int
	SaltLen    int
	KeyLen     int
}

// DefaultPBKDF2Params returns the defaults for deriving a 256-bit key.
func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{
		Iterations: DefaultIterations,
		SaltLen:    SaltLengthBytes,
		KeyLen:     KeyLengthBytes,
	}
}

// Validate reports whether the parameters can produce a usable vault key.
func (p PBKDF2Params) Validate() error {
	if p.Iterations < MinIterations {
		return fmt.Errorf("%w: iterations must be at least %d", apperrors.ErrDerivationFailure, MinIterations)
	}
	if p.SaltLen != SaltLengthBytes {
		return fmt.Errorf("%w: salt length must be %d bytes", apperrors.ErrDerivationFailure, SaltLengthBytes)
	}
	if p.KeyLen != KeyLengthBytes {
		return fmt.Errorf("%w: key length must be %d bytes", apperrors.ErrDerivationFailure, KeyLengthBytes)
	}
	return nil
}

// DeriveKeyPBKDF2 derives raw key bytes from password and salt. Identical
// inputs always produce identical output.
func DeriveKeyPBKDF2(password, salt []byte, p PBKDF2Params) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password is required", apperrors.ErrDerivationFailure)
	}
	if len(salt) != SaltLengthBytes {
		return nil, fmt.Errorf("%w: salt must be %d bytes", apperrors.ErrDerivationFailure, SaltLengthBytes)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	key := pbkdf2.Key(password, salt, p.Iterations, p.KeyLen, sha256.New)
	if len(key) != p.KeyLen {
		return nil, fmt.Errorf("%w: derived key has unexpected length %d", apperrors.ErrDerivationFailure, len(key))
	}
	return key, nil
}

// NewRandomSalt returns a cryptographically secure random vault salt.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLengthBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// FallbackKeyMaterial pads the secret with zero bytes, or truncates it, to
// KeyLengthBytes. The result is identical for every installation sharing the
// secret, so it offers convenience rather than confidentiality.
func FallbackKeyMaterial(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: fallback secret is empty", apperrors.ErrDerivationFailure)
	}
	key := make([]byte, KeyLengthBytes)
	copy(key, secret)
	return key, nil
}
