package krypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

func testParams() PBKDF2Params {
	p := DefaultPBKDF2Params()
	p.Iterations = MinIterations
	return p
}

func TestDeriveKeyPBKDF2_Deterministic(t *testing.T) {
	salt, err := NewRandomSalt()
	require.NoError(t, err)

	k1, err := DeriveKeyPBKDF2([]byte("correct-horse"), salt, testParams())
	require.NoError(t, err)
	k2, err := DeriveKeyPBKDF2([]byte("correct-horse"), salt, testParams())
	require.NoError(t, err)

	assert.Len(t, k1, KeyLengthBytes)
	assert.Equal(t, k1, k2)

	other, err := DeriveKeyPBKDF2([]byte("wrong-password"), salt, testParams())
	require.NoError(t, err)
	assert.NotEqual(t, k1, other)
}

func TestDeriveKeyPBKDF2_IterationsChangeKey(t *testing.T) {
	p := PBKDF2Params{Iterations: MinIterations, SaltLen: SaltLengthBytes, KeyLen: KeyLengthBytes}
	salt := []byte("0123456789abcdef")
	a, err := DeriveKeyPBKDF2([]byte("passwd"), salt, p)
	require.NoError(t, err)

	p.Iterations++
	b, err := DeriveKeyPBKDF2([]byte("passwd"), salt, p)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(a, b), "iteration count must influence the key")
}

func TestDeriveKeyPBKDF2_RejectsBadInput(t *testing.T) {
	salt := make([]byte, SaltLengthBytes)

	tests := []struct {
		name     string
		password []byte
		salt     []byte
		params   PBKDF2Params
	}{
		{"empty password", nil, salt, testParams()},
		{"short salt", []byte("pw"), make([]byte, 12), testParams()},
		{"weak iterations", []byte("pw"), salt, PBKDF2Params{Iterations: 10, SaltLen: SaltLengthBytes, KeyLen: KeyLengthBytes}},
		{"wrong key length", []byte("pw"), salt, PBKDF2Params{Iterations: MinIterations, SaltLen: SaltLengthBytes, KeyLen: 16}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DeriveKeyPBKDF2(tc.password, tc.salt, tc.params)
			assert.ErrorIs(t, err, apperrors.ErrDerivationFailure)
		})
	}
}

func TestNewRandomSalt(t *testing.T) {
	a, err := NewRandomSalt()
	require.NoError(t, err)
	b, err := NewRandomSalt()
	require.NoError(t, err)
	assert.Len(t, a, SaltLengthBytes)
	assert.NotEqual(t, a, b)
}

func TestFallbackKeyMaterial(t *testing.T) {
	short, err := FallbackKeyMaterial("abc")
	require.NoError(t, err)
	assert.Len(t, short, KeyLengthBytes)
	assert.Equal(t, []byte("abc"), short[:3])
	assert.Equal(t, make([]byte, KeyLengthBytes-3), short[3:])

	long, err := FallbackKeyMaterial(string(bytes.Repeat([]byte("x"), 40)))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("x"), KeyLengthBytes), long)

	_, err = FallbackKeyMaterial("")
	assert.ErrorIs(t, err, apperrors.ErrDerivationFailure)
}

func TestMasterKey_Destroy(t *testing.T) {
	raw := bytes.Repeat([]byte{7}, KeyLengthBytes)
	k, err := NewMasterKey(raw, ModePassword, AESGCM)
	require.NoError(t, err)

	raw[0] = 0
	assert.Equal(t, byte(7), k.Bytes()[0], "key must not alias caller buffer")

	view := k.Bytes()
	view[1] = 0
	assert.Equal(t, byte(7), k.Bytes()[1], "Bytes must return a copy")

	k.Destroy()
	assert.True(t, k.Destroyed())
	assert.Nil(t, k.Bytes())

	_, err = NewMasterKey(make([]byte, 16), ModePassword, AESGCM)
	assert.ErrorIs(t, err, apperrors.ErrDerivationFailure)
}
