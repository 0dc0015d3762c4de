package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "./dev-vault", cfg.Dir)
				assert.Equal(t, "sqlite", cfg.Store)
				assert.Equal(t, 100_000, cfg.KDFIterations)
				assert.Equal(t, 2, cfg.KDFWorkers)
				assert.Equal(t, "aes-256-gcm", cfg.Cipher)
				assert.Equal(t, DefaultFallbackSecret, cfg.FallbackSecret)
				assert.Equal(t, time.Duration(0), cfg.SessionTTL)
				assert.Equal(t, "warn", cfg.LogLevel)
			},
		},
		{
			name: "load custom storage configuration",
			envVars: map[string]string{
				"PASSVAULT_DIR":   "/tmp/vault",
				"PASSVAULT_STORE": "bolt",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/vault", cfg.Dir)
				assert.Equal(t, "bolt", cfg.Store)
			},
		},
		{
			name: "load custom kdf configuration",
			envVars: map[string]string{
				"PASSVAULT_KDF_ITERATIONS": "250000",
				"PASSVAULT_KDF_WORKERS":    "4",
				"PASSVAULT_CIPHER":         "chacha20-poly1305",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 250000, cfg.KDFIterations)
				assert.Equal(t, 4, cfg.KDFWorkers)

				opts := cfg.DeriverOptions()
				assert.Equal(t, 250000, opts.Params.Iterations)
				assert.Equal(t, krypto.ChaCha20, opts.Cipher)
				assert.Equal(t, 4, opts.Workers)
			},
		},
		{
			name: "load custom session configuration",
			envVars: map[string]string{
				"PASSVAULT_SESSION_TTL_SECONDS": "300",
				"PASSVAULT_LOG_LEVEL":           "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 300*time.Second, cfg.SessionTTL)
				assert.Equal(t, "debug", cfg.LogLevel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := Load()
			tt.validate(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Dir:            t.TempDir(),
			Store:          "sqlite",
			KDFIterations:  krypto.DefaultIterations,
			Cipher:         string(krypto.AESGCM),
			FallbackSecret: DefaultFallbackSecret,
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Cipher = "rot13"
	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidInput)

	cfg = base()
	cfg.KDFIterations = 10
	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidInput)

	cfg = base()
	cfg.FallbackSecret = ""
	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidInput)

	cfg = base()
	cfg.Dir = " "
	assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidInput)
}
