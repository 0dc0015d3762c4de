package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/service"
	"github.com/Hussein-Mazeh/passvault/krypto"
)

func (a *app) sessionCommand() *cli.Command {
	return &cli.Command{
		Name:         "session",
		Usage:        "unlock once and run several commands",
		OnUsageError: usageError,
		Action: a.withUnlocked(func(ctx context.Context, _ *cli.Command, svc *service.Service) error {
			return a.sessionLoop(ctx, svc)
		}),
	}
}

// sessionLoop reads commands from a.in until exit, lock or end of input.
// The key stays cached until lock, or until it sits idle longer than the
// configured session TTL; unlock re-prompts in the mode the session began in.
func (a *app) sessionLoop(ctx context.Context, svc *service.Service) error {
	mode, _ := svc.KeyMode()
	quick := mode == krypto.ModeFallback

	prompt := "pm> "
	if quick {
		prompt = "pm(quick)> "
	}
	for {
		fmt.Fprint(a.errOut, prompt)
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read input: %w", err)
		}
		if err != nil && strings.TrimSpace(line) == "" {
			fmt.Fprintln(a.errOut)
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			a.printSessionHelp()
		case "exit", "quit":
			return nil
		case "lock":
			svc.Lock()
			fmt.Fprintln(a.out, "vault locked")
			return nil
		case "unlock":
			if err := a.unlock(ctx, quick, svc); err != nil {
				if err := a.handleSessionError(userFacing(err)); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintln(a.out, "vault unlocked")
		default:
			cmd := a.sessionLine(svc, fields[0])
			if cmd == nil {
				fmt.Fprintf(a.errOut, "unknown command: %s\n", fields[0])
				continue
			}
			if err := cmd.Run(ctx, fields); err != nil {
				if err := a.handleSessionError(err); err != nil {
					return err
				}
			}
		}
	}
}

// sessionLine builds a fresh command for one REPL line; parsed flag state
// does not carry over between lines.
func (a *app) sessionLine(svc *service.Service, name string) *cli.Command {
	cmd := &cli.Command{
		Name:         name,
		Writer:       a.out,
		ErrWriter:    a.errOut,
		HideHelp:     true,
		OnUsageError: usageError,
	}
	wrap := func(fn func(ctx context.Context, cmd *cli.Command) error) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			err := fn(ctx, cmd)
			if errors.Is(err, apperrors.ErrVaultLocked) {
				return userError{msg: "session key expired; type unlock to continue"}
			}
			return userFacing(err)
		}
	}

	switch name {
	case "add":
		cmd.Flags = []cli.Flag{
			&cli.StringFlag{Name: "site"},
			&cli.StringFlag{Name: "user"},
		}
		cmd.Action = wrap(func(ctx context.Context, cmd *cli.Command) error {
			return a.addEntry(ctx, svc, cmd.String("site"), cmd.String("user"))
		})
	case "get":
		cmd.Flags = []cli.Flag{
			&cli.StringFlag{Name: "id"},
			&cli.StringFlag{Name: "site"},
			&cli.StringFlag{Name: "user"},
		}
		cmd.Action = wrap(func(ctx context.Context, cmd *cli.Command) error {
			id, err := a.resolveID(ctx, svc, cmd.String("id"), cmd.String("site"), cmd.String("user"))
			if err != nil {
				return err
			}
			pw, err := svc.RevealPassword(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, pw)
			return nil
		})
	case "list", "search":
		cmd.Action = wrap(func(ctx context.Context, cmd *cli.Command) error {
			entries, err := svc.Search(ctx, strings.Join(cmd.Args().Slice(), " "))
			if err != nil {
				return err
			}
			a.printEntries(entries)
			return nil
		})
	case "pin":
		cmd.Flags = []cli.Flag{idFlag()}
		cmd.Action = wrap(func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			return a.togglePin(ctx, svc, id)
		})
	case "delete":
		cmd.Flags = []cli.Flag{idFlag()}
		cmd.Action = wrap(func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			if err := svc.DeleteEntry(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", id)
			return nil
		})
	default:
		return nil
	}
	return cmd
}

// handleSessionError prints user errors and keeps the loop going; anything
// else ends the session.
func (a *app) handleSessionError(err error) error {
	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(a.errOut, uerr.Error())
		return nil
	}
	return err
}

func (a *app) printSessionHelp() {
	fmt.Fprintln(a.out, `commands:
  add --site <site> --user <user>
  get --id <id> | --site <site> [--user <user>]
  list
  search <text>
  pin --id <id>
  delete --id <id>
  unlock
  lock
  exit`)
}
