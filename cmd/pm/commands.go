package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/Hussein-Mazeh/passvault/auth"
	apperrors "github.com/Hussein-Mazeh/passvault/internal/errors"
	"github.com/Hussein-Mazeh/passvault/internal/service"
	"github.com/Hussein-Mazeh/passvault/internal/vault"
	"github.com/Hussein-Mazeh/passvault/store"
)

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      "pm",
		Usage:     "local password vault",
		Version:   cliVersion,
		Writer:    a.out,
		ErrWriter: a.errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "vault directory",
				Value: a.cfg.Dir,
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "storage backend (sqlite or bolt)",
				Value: a.cfg.Store,
			},
			&cli.BoolFlag{
				Name:  "quick",
				Usage: "use the fallback key instead of a master password",
			},
		},
		OnUsageError: usageError,
		Commands: []*cli.Command{
			a.initCommand(),
			a.addCommand(),
			a.getCommand(),
			a.listCommand(),
			a.pinCommand(),
			a.deleteCommand(),
			a.passwdCommand(),
			a.exportCommand(),
			a.importCommand(),
			a.resetCommand(),
			a.sessionCommand(),
		},
	}
}

func usageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return userError{msg: err.Error()}
}

// withVault opens the vault for one command and closes it afterwards.
func (a *app) withVault(fn func(ctx context.Context, cmd *cli.Command, svc *service.Service) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.NArg() != 0 {
			return userError{msg: "unexpected positional arguments"}
		}
		svc, err := a.open(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()
		return userFacing(fn(ctx, cmd, svc))
	}
}

// withUnlocked is withVault plus an unlock before fn runs.
func (a *app) withUnlocked(fn func(ctx context.Context, cmd *cli.Command, svc *service.Service) error) cli.ActionFunc {
	return a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
		if err := a.unlock(ctx, cmd.Bool("quick"), svc); err != nil {
			return err
		}
		return fn(ctx, cmd, svc)
	})
}

func (a *app) initCommand() *cli.Command {
	return &cli.Command{
		Name:         "init",
		Usage:        "set the master password of a new vault",
		OnUsageError: usageError,
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			ok, err := svc.Initialized(ctx)
			if err != nil {
				return err
			}
			if ok {
				return userError{msg: "vault already initialized"}
			}

			pw, err := a.promptConfirmed("New master password: ", "Confirm master password: ")
			if err != nil {
				return err
			}
			defer zeroBytes(pw)

			s := auth.EstimateStrength(string(pw))
			fmt.Fprintf(a.errOut, "strength: %d/4, estimated crack time %s\n", s.Score, s.CrackTime)
			if err := auth.ValidateMasterPasswordAdvanced(string(pw), auth.DefaultValidateOptions()); err != nil {
				return err
			}
			unreadable, err := svc.Initialize(ctx, string(pw))
			if errors.Is(err, apperrors.ErrConflict) {
				return userError{msg: "vault already initialized"}
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "vault initialized")
			if len(unreadable) > 0 {
				fmt.Fprintf(a.errOut, "warning: %d password-mode entries cannot be opened with this master password; they were sealed under another salt or password:\n", len(unreadable))
				for _, id := range unreadable {
					fmt.Fprintf(a.errOut, "  %s\n", id)
				}
			}
			return nil
		}),
	}
}

func (a *app) addCommand() *cli.Command {
	return &cli.Command{
		Name:         "add",
		Usage:        "store a new credential",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "site", Usage: "website identifier"},
			&cli.StringFlag{Name: "user", Usage: "username"},
		},
		Action: a.withUnlocked(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			return a.addEntry(ctx, svc, cmd.String("site"), cmd.String("user"))
		}),
	}
}

func (a *app) addEntry(ctx context.Context, svc *service.Service, site, user string) error {
	if site == "" || user == "" {
		return userError{msg: "add requires --site and --user"}
	}
	secret, err := a.promptConfirmed("Secret: ", "Confirm: ")
	if err != nil {
		return err
	}
	defer zeroBytes(secret)

	entry, err := svc.SaveEntry(ctx, site, user, string(secret))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %s\n", entry.ID)
	return nil
}

func (a *app) getCommand() *cli.Command {
	return &cli.Command{
		Name:         "get",
		Usage:        "print the password of a credential",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "entry id"},
			&cli.StringFlag{Name: "site", Usage: "website identifier"},
			&cli.StringFlag{Name: "user", Usage: "username, when a site has several"},
		},
		Action: a.withUnlocked(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
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
		}),
	}
}

// resolveID picks an entry by id, or by exact site and optional username.
func (a *app) resolveID(ctx context.Context, svc *service.Service, id, site, user string) (vault.EntryID, error) {
	if id != "" {
		return vault.ParseEntryID(id), nil
	}
	if site == "" {
		return vault.EntryID{}, userError{msg: "specify --id or --site"}
	}

	entries, err := svc.ListEntries(ctx)
	if err != nil {
		return vault.EntryID{}, err
	}
	var matches []vault.VaultEntry
	for _, e := range entries {
		if !strings.EqualFold(e.Site, site) {
			continue
		}
		if user != "" && e.Username != user {
			continue
		}
		matches = append(matches, e)
	}

	switch len(matches) {
	case 0:
		return vault.EntryID{}, userError{msg: "no such entry"}
	case 1:
		return matches[0].ID, nil
	default:
		a.printEntries(matches)
		return vault.EntryID{}, userError{msg: "several entries match; use --id"}
	}
}

func (a *app) listCommand() *cli.Command {
	return &cli.Command{
		Name:         "list",
		Usage:        "list credentials, pinned first",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "filter by site or username"},
		},
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			entries, err := svc.Search(ctx, cmd.String("query"))
			if err != nil {
				return err
			}
			a.printEntries(entries)
			return nil
		}),
	}
}

func (a *app) printEntries(entries []vault.VaultEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "no entries")
		return
	}
	for _, e := range entries {
		mark := " "
		if e.Pinned {
			mark = "*"
		}
		fmt.Fprintf(a.out, "%s %-20s %-30s %-20s %s\n", mark, e.ID, e.Site, e.Username, e.KeyMode)
	}
}

func idFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Usage: "entry id"}
}

func requireID(cmd *cli.Command) (vault.EntryID, error) {
	raw := cmd.String("id")
	if raw == "" {
		return vault.EntryID{}, userError{msg: fmt.Sprintf("%s requires --id", cmd.Name)}
	}
	return vault.ParseEntryID(raw), nil
}

func (a *app) pinCommand() *cli.Command {
	return &cli.Command{
		Name:         "pin",
		Usage:        "toggle the pinned flag of a credential",
		OnUsageError: usageError,
		Flags:        []cli.Flag{idFlag()},
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			return a.togglePin(ctx, svc, id)
		}),
	}
}

func (a *app) togglePin(ctx context.Context, svc *service.Service, id vault.EntryID) error {
	pinned, err := svc.TogglePin(ctx, id)
	if err != nil {
		return err
	}
	if pinned {
		fmt.Fprintf(a.out, "pinned %s\n", id)
	} else {
		fmt.Fprintf(a.out, "unpinned %s\n", id)
	}
	return nil
}

func (a *app) deleteCommand() *cli.Command {
	return &cli.Command{
		Name:         "delete",
		Usage:        "remove a credential",
		OnUsageError: usageError,
		Flags:        []cli.Flag{idFlag()},
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			if err := svc.DeleteEntry(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", id)
			return nil
		}),
	}
}

func (a *app) passwdCommand() *cli.Command {
	return &cli.Command{
		Name:         "passwd",
		Usage:        "replace the password of a credential",
		OnUsageError: usageError,
		Flags:        []cli.Flag{idFlag()},
		Action: a.withUnlocked(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			id, err := requireID(cmd)
			if err != nil {
				return err
			}
			secret, err := a.promptConfirmed("New secret: ", "Confirm: ")
			if err != nil {
				return err
			}
			defer zeroBytes(secret)

			if err := svc.ChangePassword(ctx, id, string(secret)); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "updated %s\n", id)
			return nil
		}),
	}
}

func (a *app) exportCommand() *cli.Command {
	return &cli.Command{
		Name:         "export",
		Usage:        "write every credential, still encrypted, to a JSON file",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file", Value: store.DefaultExportName},
		},
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			n, err := svc.ExportFile(ctx, cmd.String("out"))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "exported %d entries to %s\n", n, cmd.String("out"))
			return nil
		}),
	}
}

func (a *app) importCommand() *cli.Command {
	return &cli.Command{
		Name:         "import",
		Usage:        "add the credentials of an export file",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "in", Aliases: []string{"i"}, Usage: "export file", Value: store.DefaultExportName},
		},
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			report, err := svc.ImportFile(ctx, cmd.String("in"))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "imported %d entries\n", report.Imported)
			for _, r := range report.Rejected {
				fmt.Fprintf(a.out, "rejected record %d: %v\n", r.Index, r.Err)
			}
			for _, id := range report.Skipped {
				fmt.Fprintf(a.out, "skipped %s: id already in vault\n", id)
			}
			return nil
		}),
	}
}

func (a *app) resetCommand() *cli.Command {
	return &cli.Command{
		Name:         "reset",
		Usage:        "delete every credential and the vault salt",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Usage: "skip the confirmation"},
		},
		Action: a.withVault(func(ctx context.Context, cmd *cli.Command, svc *service.Service) error {
			if !cmd.Bool("yes") {
				fmt.Fprint(a.errOut, "Type RESET to delete every entry: ")
				line, _ := a.in.ReadString('\n')
				if strings.TrimSpace(line) != "RESET" {
					return userError{msg: "reset cancelled"}
				}
			}
			if err := svc.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "vault reset")
			return nil
		}),
	}
}
