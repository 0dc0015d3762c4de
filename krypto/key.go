package krypto

import (
	"fmt"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

// KeyMode distinguishes password-derived keys from the fixed fallback key.
type KeyMode string

const (
	ModePassword KeyMode = "password"
	ModeFallback KeyMode = "fallback"
)

// ParseKeyMode maps a stored mode name to a KeyMode. Empty means password,
// which is what records written before modes were tracked used.
func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(s) {
	case ModePassword, "":
		return ModePassword, nil
	case ModeFallback:
		return ModeFallback, nil
	default:
		return "", fmt.Errorf("%w: unknown key mode %q", apperrors.ErrInvalidInput, s)
	}
}

// MasterKey is a symmetric vault key. It is never persisted.
type MasterKey struct {
	raw  []byte
	mode KeyMode
	alg  Algorithm
}

// NewMasterKey copies raw into a new key of the given mode and cipher.
func NewMasterKey(raw []byte, mode KeyMode, alg Algorithm) (*MasterKey, error) {
	if len(raw) != KeyLengthBytes {
		return nil, fmt.Errorf("%w: key must be %d bytes", apperrors.ErrDerivationFailure, KeyLengthBytes)
	}
	if mode != ModePassword && mode != ModeFallback {
		return nil, fmt.Errorf("%w: unknown key mode %q", apperrors.ErrDerivationFailure, mode)
	}
	k := &MasterKey{raw: make([]byte, len(raw)), mode: mode, alg: alg}
	copy(k.raw, raw)
	return k, nil
}

func (k *MasterKey) Mode() KeyMode        { return k.mode }
func (k *MasterKey) Algorithm() Algorithm { return k.alg }

// Destroyed reports whether Destroy has been called.
func (k *MasterKey) Destroyed() bool { return k.raw == nil }

// Bytes returns a copy of the key material. The caller owns the copy and
// should Zero it when done.
func (k *MasterKey) Bytes() []byte {
	if k.Destroyed() {
		return nil
	}
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out
}

// Destroy zeroes the key material. The key is unusable afterwards.
func (k *MasterKey) Destroy() {
	if k == nil {
		return
	}
	Zero(k.raw)
	k.raw = nil
}

// Zero overwrites sensitive byte slices in place.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
