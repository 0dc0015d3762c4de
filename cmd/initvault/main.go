// Command initvault provisions an empty vault non-interactively: it creates
// the store file, the vault salt and the KDF header. The master password is
// set later with pm init.
package main

import (
	"context"
	"os"

	"github.com/Hussein-Mazeh/passvault/internal/config"
	"github.com/Hussein-Mazeh/passvault/internal/logging"
	"github.com/Hussein-Mazeh/passvault/internal/service"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stderr, cfg.LogLevel)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error(context.Background(), "initialize vault", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	svc, err := service.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	salt, err := svc.GetOrCreateSalt(ctx)
	if err != nil {
		return err
	}
	krypto.Zero(salt)

	// Loading the fallback key pins the KDF header.
	key, err := svc.GetFallbackKey(ctx)
	if err != nil {
		return err
	}
	key.Destroy()

	logger.Info(ctx, "vault provisioned", "dir", cfg.Dir, "store", cfg.Store)
	return nil
}
