package vault

import (
	"time"

	"github.com/Hussein-Mazeh/passvault/krypto"
)

// Metadata keys used by the vault.
const (
	SaltKey   = "vault_salt"
	HeaderKey = "vault_header"
)

// HeaderVersion is the current vault header layout.
const HeaderVersion = 1

// KDFConfig describes the key-derivation parameters stored in the vault header.
type KDFConfig struct {
	Name       string `json:"name"`
	Hash       string `json:"hash"`
	Iterations int    `json:"iterations"`
	KeyLen     int    `json:"keyLen"`
}

// VaultHeader captures metadata persisted alongside the vault contents.
type VaultHeader struct {
	Version   int              `json:"version"`
	CreatedAt time.Time        `json:"createdAt"`
	KDF       KDFConfig        `json:"kdf"`
	Cipher    krypto.Algorithm `json:"cipher"`
}

// NewHeader builds the header for a vault created with the given settings.
func NewHeader(p krypto.PBKDF2Params, alg krypto.Algorithm) VaultHeader {
	return VaultHeader{
		Version:   HeaderVersion,
		CreatedAt: time.Now().UTC(),
		KDF: KDFConfig{
			Name:       krypto.KDFName,
			Hash:       krypto.KDFHash,
			Iterations: p.Iterations,
			KeyLen:     p.KeyLen,
		},
		Cipher: alg,
	}
}

// Params converts the stored KDF settings back into derivation parameters.
func (h VaultHeader) Params() krypto.PBKDF2Params {
	return krypto.PBKDF2Params{
		Iterations: h.KDF.Iterations,
		SaltLen:    krypto.SaltLengthBytes,
		KeyLen:     h.KDF.KeyLen,
	}
}
