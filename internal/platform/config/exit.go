package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Process exit codes shared by the drainwiz commands.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// UsageError marks a bad flag or environment value.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// Usage wraps err as a UsageError. A nil err stays nil.
func Usage(err error) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err}
}

// ExitCode maps a command error to its process exit code.
func ExitCode(err error) int {
	var usage *UsageError
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return ExitOK
	case errors.As(err, &usage):
		return ExitUsage
	default:
		return ExitError
	}
}

var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// Fail reports "<action>: <err>" on stderr and exits with ExitCode(err).
// Help requests exit quietly.
func Fail(action string, err error) {
	code := ExitCode(err)
	if code != ExitOK {
		fmt.Fprintf(stderr, "%s: %v\n", action, err)
	}
	exit(code)
}
