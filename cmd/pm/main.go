package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Hussein-Mazeh/passvault/internal/config"
	"github.com/Hussein-Mazeh/passvault/internal/logging"
)

const cliVersion = "0.2.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	a := newApp(config.Load(), os.Stdin, os.Stdout, os.Stderr)
	a.logger = logging.New(os.Stderr, a.cfg.LogLevel)

	if err := a.command().Run(context.Background(), os.Args); err != nil {
		os.Exit(exitCode(os.Stderr, err))
	}
}

// exitCode reports err on w and returns 1 for user errors, 2 otherwise.
func exitCode(w io.Writer, err error) int {
	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(w, uerr.Error())
		return 1
	}
	fmt.Fprintf(w, "unexpected error: %v\n", err)
	return 2
}
