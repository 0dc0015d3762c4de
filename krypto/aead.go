package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

const (
	// NonceSize is the nonce length shared by both supported ciphers.
	NonceSize = 12
	// TagSize is the authentication tag appended to every ciphertext.
	TagSize = 16
)

// Algorithm names the AEAD cipher a vault was created with.
type Algorithm string

const (
	AESGCM   Algorithm = "aes-256-gcm"
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// ParseAlgorithm maps a configured cipher name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case AESGCM, "":
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", fmt.Errorf("%w: unsupported cipher %q", apperrors.ErrInvalidInput, name)
	}
}

// Envelope is the self-contained result of one encryption call.
type Envelope struct {
	Nonce      []byte
	Ciphertext []byte // ciphertext || tag
	Mode       KeyMode
}

// Encrypt seals plaintext under key with a fresh random nonce.
func Encrypt(plaintext string, key *MasterKey) (Envelope, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return Envelope{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	return Envelope{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, []byte(plaintext), nil),
		Mode:       key.Mode(),
	}, nil
}

// Decrypt opens env with key. Any tag failure is ErrAuthenticationFailure and
// yields no plaintext.
func Decrypt(env Envelope, key *MasterKey) (string, error) {
	if key != nil && env.Mode != key.Mode() {
		return "", fmt.Errorf("decrypt %s envelope with %s key: %w", env.Mode, key.Mode(), apperrors.ErrKeyModeMismatch)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	if len(env.Nonce) != NonceSize {
		return "", fmt.Errorf("invalid nonce size %d: %w", len(env.Nonce), apperrors.ErrAuthenticationFailure)
	}
	if len(env.Ciphertext) < TagSize {
		return "", fmt.Errorf("ciphertext too short: %w", apperrors.ErrAuthenticationFailure)
	}

	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", apperrors.ErrAuthenticationFailure)
	}
	return string(plaintext), nil
}

func newAEAD(key *MasterKey) (cipher.AEAD, error) {
	if key == nil || key.Destroyed() {
		return nil, fmt.Errorf("%w: key is not available", apperrors.ErrVaultLocked)
	}
	if len(key.raw) != KeyLengthBytes {
		return nil, errors.New("aead requires a 32-byte key")
	}

	switch key.Algorithm() {
	case AESGCM:
		block, err := aes.NewCipher(key.raw)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create gcm: %w", err)
		}
		return gcm, nil
	case ChaCha20:
		aead, err := chacha20poly1305.New(key.raw)
		if err != nil {
			return nil, fmt.Errorf("create chacha20-poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: unsupported cipher %q", apperrors.ErrInvalidInput, key.Algorithm())
	}
}
