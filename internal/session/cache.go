// Package session keeps the derived vault key in memory between operations
// so the master password is not re-derived on every action.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// KeyCache holds at most one vault key, sealed in a memguard enclave while
// idle. A zero TTL keeps the key until Clear.
type KeyCache struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
	mode    krypto.KeyMode
	alg     krypto.Algorithm

	ttl   time.Duration
	timer *time.Timer
	// gen invalidates expiry timers armed for an earlier key.
	gen uint64
}

// NewKeyCache returns an empty cache. Keys expire after ttl without a Get;
// ttl <= 0 disables expiry.
func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{ttl: ttl}
}

// Set replaces the cached key with a copy of key. The caller keeps ownership
// of key.
func (c *KeyCache) Set(key *krypto.MasterKey) error {
	if key == nil || key.Destroyed() {
		return fmt.Errorf("cache key: %w", apperrors.ErrVaultLocked)
	}
	// NewEnclave wipes its input, so hand it a private copy.
	enclave := memguard.NewEnclave(key.Bytes())
	if enclave == nil {
		return fmt.Errorf("cache key: %w", apperrors.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLocked()
	c.enclave = enclave
	c.mode = key.Mode()
	c.alg = key.Algorithm()
	c.armLocked()
	return nil
}

// Get returns a fresh copy of the cached key, which the caller must Destroy.
// It reports false when the cache is empty or expired.
func (c *KeyCache) Get() (*krypto.MasterKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enclave == nil {
		return nil, false
	}
	buf, err := c.enclave.Open()
	if err != nil {
		c.clearLocked()
		return nil, false
	}
	defer buf.Destroy()

	key, err := krypto.NewMasterKey(buf.Bytes(), c.mode, c.alg)
	if err != nil {
		c.clearLocked()
		return nil, false
	}
	c.armLocked()
	return key, true
}

// Has reports whether a key is cached without opening it.
func (c *KeyCache) Has() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enclave != nil
}

// Mode returns the mode of the cached key, if any.
func (c *KeyCache) Mode() (krypto.KeyMode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enclave == nil {
		return "", false
	}
	return c.mode, true
}

// Clear discards the cached key.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *KeyCache) clearLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.enclave = nil
	c.mode = ""
	c.alg = ""
}

func (c *KeyCache) armLocked() {
	if c.ttl <= 0 {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.ttl, func() { c.expire(gen) })
}

func (c *KeyCache) expire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.clearLocked()
}
