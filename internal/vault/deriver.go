package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/logging"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// DeriverOptions configure a Deriver. Params and Cipher only apply when the
// vault header is first created; an existing vault keeps its own.
type DeriverOptions struct {
	Params         krypto.PBKDF2Params
	Cipher         krypto.Algorithm
	FallbackSecret string
	// Workers bounds how many derivations run at once.
	Workers int
}

// Deriver turns master passwords into vault keys.
type Deriver struct {
	meta   MetadataStore
	opts   DeriverOptions
	sem    *semaphore.Weighted
	logger logging.Logger

	hdrMu sync.Mutex
}

// NewDeriver validates opts and returns a Deriver backed by meta.
func NewDeriver(meta MetadataStore, opts DeriverOptions, logger logging.Logger) (*Deriver, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if _, err := krypto.ParseAlgorithm(string(opts.Cipher)); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Deriver{
		meta:   meta,
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Workers)),
		logger: logger,
	}, nil
}

// Header returns the vault header, creating it from the configured defaults
// the first time a vault is used.
func (d *Deriver) Header(ctx context.Context) (VaultHeader, error) {
	d.hdrMu.Lock()
	defer d.hdrMu.Unlock()

	raw, err := d.meta.Get(ctx, HeaderKey)
	if err != nil {
		return VaultHeader{}, fmt.Errorf("load vault header: %w", storageErr(err))
	}
	if raw == nil {
		alg, _ := krypto.ParseAlgorithm(string(d.opts.Cipher))
		fresh, err := json.Marshal(NewHeader(d.opts.Params, alg))
		if err != nil {
			return VaultHeader{}, fmt.Errorf("encode vault header: %w", err)
		}
		raw, err = d.meta.SetIfAbsent(ctx, HeaderKey, fresh)
		if err != nil {
			return VaultHeader{}, fmt.Errorf("persist vault header: %w", storageErr(err))
		}
		d.logger.Info(ctx, "vault header created", "kdf", krypto.KDFName, "iterations", d.opts.Params.Iterations, "cipher", alg)
	}

	var hdr VaultHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return VaultHeader{}, fmt.Errorf("%w: decode vault header: %v", apperrors.ErrStorageUnavailable, err)
	}
	if err := checkHeader(hdr); err != nil {
		return VaultHeader{}, err
	}
	return hdr, nil
}

func checkHeader(hdr VaultHeader) error {
	if hdr.Version != HeaderVersion {
		return fmt.Errorf("%w: unsupported header version %d", apperrors.ErrDerivationFailure, hdr.Version)
	}
	if hdr.KDF.Name != krypto.KDFName || hdr.KDF.Hash != krypto.KDFHash {
		return fmt.Errorf("%w: unsupported kdf %s/%s", apperrors.ErrDerivationFailure, hdr.KDF.Name, hdr.KDF.Hash)
	}
	if _, err := krypto.ParseAlgorithm(string(hdr.Cipher)); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrDerivationFailure, err)
	}
	return hdr.Params().Validate()
}

type deriveResult struct {
	key []byte
	err error
}

// DeriveKey derives the password-mode key for (password, salt) using the
// vault header's parameters. It returns ctx.Err() if ctx ends first; a
// derivation finishing after that is wiped and dropped.
func (d *Deriver) DeriveKey(ctx context.Context, password string, salt []byte) (*krypto.MasterKey, error) {
	hdr, err := d.Header(ctx)
	if err != nil {
		return nil, err
	}
	params := hdr.Params()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	pw := []byte(password)
	saltCopy := append([]byte(nil), salt...)
	results := make(chan deriveResult)
	start := time.Now()

	go func() {
		defer d.sem.Release(1)
		key, err := krypto.DeriveKeyPBKDF2(pw, saltCopy, params)
		krypto.Zero(pw)
		select {
		case results <- deriveResult{key: key, err: err}:
		case <-ctx.Done():
			krypto.Zero(key)
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		defer krypto.Zero(res.key)
		d.logger.Debug(ctx, "key derived", "iterations", params.Iterations, "elapsed", time.Since(start))
		return krypto.NewMasterKey(res.key, krypto.ModePassword, hdr.Cipher)
	}
}

// FallbackKey returns the quick-mode key built from the configured fallback
// secret. It is the same on every installation sharing that secret.
func (d *Deriver) FallbackKey(ctx context.Context) (*krypto.MasterKey, error) {
	hdr, err := d.Header(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := krypto.FallbackKeyMaterial(d.opts.FallbackSecret)
	if err != nil {
		return nil, err
	}
	defer krypto.Zero(raw)
	return krypto.NewMasterKey(raw, krypto.ModeFallback, hdr.Cipher)
}
