package krypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
)

func randomKey(t *testing.T, mode KeyMode, alg Algorithm) *MasterKey {
	t.Helper()
	raw := make([]byte, KeyLengthBytes)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	key, err := NewMasterKey(raw, mode, alg)
	require.NoError(t, err)
	return key
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	plaintexts := []string{"", "hunter2", "pässwörd ✓", string(make([]byte, 4096))}

	for _, alg := range []Algorithm{AESGCM, ChaCha20} {
		key := randomKey(t, ModePassword, alg)
		for _, p := range plaintexts {
			env, err := Encrypt(p, key)
			require.NoError(t, err)
			assert.Len(t, env.Nonce, NonceSize)
			assert.Len(t, env.Ciphertext, len(p)+TagSize)
			assert.Equal(t, ModePassword, env.Mode)

			got, err := Decrypt(env, key)
			require.NoError(t, err, "alg %s", alg)
			assert.Equal(t, p, got)
		}
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key := randomKey(t, ModePassword, AESGCM)
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		env, err := Encrypt("same plaintext", key)
		require.NoError(t, err)
		n := string(env.Nonce)
		assert.False(t, seen[n], "nonce reused")
		seen[n] = true
	}
}

func TestDecrypt_BitFlipFailsAuthentication(t *testing.T) {
	for _, alg := range []Algorithm{AESGCM, ChaCha20} {
		key := randomKey(t, ModePassword, alg)
		env, err := Encrypt("hunter2", key)
		require.NoError(t, err)

		t.Run(string(alg)+" ciphertext", func(t *testing.T) {
			for i := 0; i < len(env.Ciphertext)*8; i++ {
				tampered := Envelope{Nonce: env.Nonce, Ciphertext: append([]byte(nil), env.Ciphertext...), Mode: env.Mode}
				tampered.Ciphertext[i/8] ^= 1 << (i % 8)
				got, err := Decrypt(tampered, key)
				require.ErrorIs(t, err, apperrors.ErrAuthenticationFailure, "bit %d", i)
				assert.Empty(t, got)
			}
		})

		t.Run(string(alg)+" nonce", func(t *testing.T) {
			for i := 0; i < NonceSize*8; i++ {
				tampered := Envelope{Nonce: append([]byte(nil), env.Nonce...), Ciphertext: env.Ciphertext, Mode: env.Mode}
				tampered.Nonce[i/8] ^= 1 << (i % 8)
				got, err := Decrypt(tampered, key)
				require.ErrorIs(t, err, apperrors.ErrAuthenticationFailure, "bit %d", i)
				assert.Empty(t, got)
			}
		})
	}
}

func TestDecrypt_MixedEnvelopesFail(t *testing.T) {
	key := randomKey(t, ModePassword, AESGCM)
	a, err := Encrypt("first", key)
	require.NoError(t, err)
	b, err := Encrypt("second", key)
	require.NoError(t, err)

	_, err = Decrypt(Envelope{Nonce: a.Nonce, Ciphertext: b.Ciphertext, Mode: ModePassword}, key)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailure)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	env, err := Encrypt("hunter2", randomKey(t, ModePassword, AESGCM))
	require.NoError(t, err)

	_, err = Decrypt(env, randomKey(t, ModePassword, AESGCM))
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailure)
}

func TestDecrypt_ModeMismatch(t *testing.T) {
	fallback, err := FallbackKeyMaterial("quick-mode-secret")
	require.NoError(t, err)
	quickKey, err := NewMasterKey(fallback, ModeFallback, AESGCM)
	require.NoError(t, err)
	// Same bytes, different mode: must still be refused.
	pwKey, err := NewMasterKey(fallback, ModePassword, AESGCM)
	require.NoError(t, err)

	env, err := Encrypt("hunter2", quickKey)
	require.NoError(t, err)
	assert.Equal(t, ModeFallback, env.Mode)

	_, err = Decrypt(env, pwKey)
	assert.ErrorIs(t, err, apperrors.ErrKeyModeMismatch)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailure)

	got, err := Decrypt(env, quickKey)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
}

func TestDecrypt_ShortInputs(t *testing.T) {
	key := randomKey(t, ModePassword, AESGCM)

	_, err := Decrypt(Envelope{Nonce: make([]byte, 8), Ciphertext: make([]byte, 32), Mode: ModePassword}, key)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailure)

	_, err = Decrypt(Envelope{Nonce: make([]byte, NonceSize), Ciphertext: make([]byte, 4), Mode: ModePassword}, key)
	assert.ErrorIs(t, err, apperrors.ErrAuthenticationFailure)
}

func TestEncrypt_DestroyedKey(t *testing.T) {
	key := randomKey(t, ModePassword, AESGCM)
	key.Destroy()

	_, err := Encrypt("x", key)
	assert.ErrorIs(t, err, apperrors.ErrVaultLocked)

	_, err = Encrypt("x", nil)
	assert.ErrorIs(t, err, apperrors.ErrVaultLocked)
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, AESGCM, alg)

	alg, err = ParseAlgorithm("chacha20-poly1305")
	require.NoError(t, err)
	assert.Equal(t, ChaCha20, alg)

	_, err = ParseAlgorithm("rot13")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
