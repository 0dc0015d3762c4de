package vault

import (
	"fmt"
	"strings"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// EncryptEntryPassword encrypts a plaintext password and assembles a new,
// unpinned entry with a fresh id.
//
// Site and username are trimmed and must be non-empty, as must the password.
// The returned entry records the key's mode so it is never opened with a key
// of the other mode.
func EncryptEntryPassword(key *krypto.MasterKey, site, username, plaintext string) (VaultEntry, error) {
	site = strings.TrimSpace(site)
	username = strings.TrimSpace(username)
	if site == "" || username == "" {
		return VaultEntry{}, fmt.Errorf("%w: site and username required", apperrors.ErrInvalidInput)
	}
	if plaintext == "" {
		return VaultEntry{}, fmt.Errorf("%w: password cannot be empty", apperrors.ErrInvalidInput)
	}

	env, err := krypto.Encrypt(plaintext, key)
	if err != nil {
		return VaultEntry{}, fmt.Errorf("encrypt entry password: %w", err)
	}

	return VaultEntry{
		ID:                NewEntryID(),
		Site:              site,
		Username:          username,
		EncryptedPassword: env.Ciphertext,
		IV:                env.Nonce,
		KeyMode:           env.Mode,
	}, nil
}

// DecryptEntryPassword recovers the plaintext password of e.
func DecryptEntryPassword(key *krypto.MasterKey, e VaultEntry) (string, error) {
	plaintext, err := krypto.Decrypt(e.Envelope(), key)
	if err != nil {
		return "", fmt.Errorf("decrypt entry %s: %w", e.ID, err)
	}
	return plaintext, nil
}

// ReencryptEntryPassword replaces the password of e with newPlaintext under
// key, producing a fresh nonce. Id, site, username and pin state are kept.
func ReencryptEntryPassword(key *krypto.MasterKey, e VaultEntry, newPlaintext string) (VaultEntry, error) {
	if newPlaintext == "" {
		return VaultEntry{}, fmt.Errorf("%w: new password cannot be empty", apperrors.ErrInvalidInput)
	}
	env, err := krypto.Encrypt(newPlaintext, key)
	if err != nil {
		return VaultEntry{}, fmt.Errorf("reencrypt entry %s: %w", e.ID, err)
	}
	e.EncryptedPassword = env.Ciphertext
	e.IV = env.Nonce
	e.KeyMode = env.Mode
	return e, nil
}
