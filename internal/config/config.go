// Package config provides vault configuration through environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

// DefaultFallbackSecret keys quick-mode entries when no secret is configured.
// Anyone holding it can read quick-mode entries.
const DefaultFallbackSecret = "passvault-quick-mode"

// Config holds all vault configuration.
type Config struct {
	// Dir is the directory holding the vault file.
	Dir string
	// Store selects the backend: "sqlite" or "bolt".
	Store string

	// KDFIterations is the PBKDF2 iteration count recorded for new vaults.
	KDFIterations int
	// KDFWorkers bounds concurrent key derivations.
	KDFWorkers int
	// Cipher is the AEAD recorded for new vaults.
	Cipher string
	// FallbackSecret keys quick-mode entries.
	FallbackSecret string

	// SessionTTL is how long an unused cached key survives. Zero keeps it
	// until the session ends.
	SessionTTL time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	loadDotEnv()

	return &Config{
		Dir:   env.GetString("PASSVAULT_DIR", "./dev-vault"),
		Store: env.GetString("PASSVAULT_STORE", "sqlite"),

		KDFIterations:  env.GetInt("PASSVAULT_KDF_ITERATIONS", krypto.DefaultIterations),
		KDFWorkers:     env.GetInt("PASSVAULT_KDF_WORKERS", 2),
		Cipher:         env.GetString("PASSVAULT_CIPHER", string(krypto.AESGCM)),
		FallbackSecret: env.GetString("PASSVAULT_FALLBACK_SECRET", DefaultFallbackSecret),

		SessionTTL: env.GetDuration("PASSVAULT_SESSION_TTL_SECONDS", 0, time.Second),

		LogLevel: env.GetString("PASSVAULT_LOG_LEVEL", "warn"),
	}
}

// Validate reports settings that cannot produce a working vault.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return fmt.Errorf("%w: PASSVAULT_DIR is empty", apperrors.ErrInvalidInput)
	}
	if _, err := krypto.ParseAlgorithm(c.Cipher); err != nil {
		return fmt.Errorf("PASSVAULT_CIPHER: %w", err)
	}
	if c.KDFIterations < krypto.MinIterations {
		return fmt.Errorf("%w: PASSVAULT_KDF_ITERATIONS must be at least %d", apperrors.ErrInvalidInput, krypto.MinIterations)
	}
	if c.FallbackSecret == "" {
		return fmt.Errorf("%w: PASSVAULT_FALLBACK_SECRET is empty", apperrors.ErrInvalidInput)
	}
	return nil
}

// DeriverOptions maps the KDF settings onto vault.DeriverOptions.
func (c *Config) DeriverOptions() vault.DeriverOptions {
	params := krypto.DefaultPBKDF2Params()
	params.Iterations = c.KDFIterations
	alg, _ := krypto.ParseAlgorithm(c.Cipher)
	return vault.DeriverOptions{
		Params:         params,
		Cipher:         alg,
		FallbackSecret: c.FallbackSecret,
		Workers:        c.KDFWorkers,
	}
}

// loadDotEnv searches for a .env file from the current directory up to the
// root directory and loads the first one found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
