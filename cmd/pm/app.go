package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/Hussein-Mazeh/passvault/internal/config"
	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/logging"
	"github.com/Hussein-Mazeh/passvault/internal/service"
)

// app carries what every command needs. prompt reads a secret without echo.
type app struct {
	cfg    *config.Config
	logger logging.Logger

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	prompt func(label string) ([]byte, error)
}

func newApp(cfg *config.Config, in io.Reader, out, errOut io.Writer) *app {
	a := &app{
		cfg:    cfg,
		logger: logging.Discard(),
		in:     bufio.NewReader(in),
		out:    out,
		errOut: errOut,
	}
	a.prompt = a.promptTerminal
	return a
}

func (a *app) promptTerminal(label string) ([]byte, error) {
	fmt.Fprint(a.errOut, label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.errOut)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// promptConfirmed asks for a secret twice and requires both to match.
func (a *app) promptConfirmed(label, confirmLabel string) ([]byte, error) {
	pw, err := a.prompt(label)
	if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	confirm, err := a.prompt(confirmLabel)
	if err != nil {
		zeroBytes(pw)
		return nil, fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		zeroBytes(pw)
		return nil, userError{msg: "secrets do not match"}
	}
	return pw, nil
}

// open applies the global flags to the config and opens the vault service.
func (a *app) open(cmd *cli.Command) (*service.Service, error) {
	cfg := *a.cfg
	if cmd.IsSet("dir") {
		cfg.Dir = cmd.String("dir")
	}
	if cmd.IsSet("store") {
		cfg.Store = cmd.String("store")
	}
	svc, err := service.Open(&cfg, a.logger)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			return nil, userError{msg: err.Error()}
		}
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return svc, nil
}

// unlock puts a key into the service's session cache: the fallback key when
// quick is set, otherwise the key derived from a prompted master password.
func (a *app) unlock(ctx context.Context, quick bool, svc *service.Service) error {
	if quick {
		fmt.Fprintln(a.errOut, "warning: quick mode entries are protected by a shared fallback key")
		return svc.UnlockQuick(ctx)
	}

	ok, err := svc.Initialized(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return userError{msg: "vault has no master password; run pm init first"}
	}

	pw, err := a.prompt("Enter master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	if err := svc.Unlock(ctx, string(pw)); err != nil {
		if errors.Is(err, apperrors.ErrAuthenticationFailure) {
			return userError{msg: "failed to unlock vault"}
		}
		return err
	}
	return nil
}

// userFacing turns domain failures a user can act on into userErrors.
func userFacing(err error) error {
	var uerr userError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &uerr):
		return err
	case errors.Is(err, apperrors.ErrKeyModeMismatch):
		return userError{msg: "entry was saved in the other key mode; retry with or without --quick"}
	case errors.Is(err, apperrors.ErrAuthenticationFailure):
		return userError{msg: "failed to decrypt entry: wrong key or corrupted data"}
	case errors.Is(err, apperrors.ErrNotFound):
		return userError{msg: "no such entry"}
	case errors.Is(err, apperrors.ErrConflict):
		return userError{msg: "an entry with that id already exists"}
	case errors.Is(err, apperrors.ErrVaultLocked):
		return userError{msg: "vault is locked"}
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrMalformedEntry):
		return userError{msg: err.Error()}
	default:
		return err
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
