package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exit codes
const (
	ExitFailure    = 1
	ExitInput      = 2 // unreadable input, bad statement or location
	ExitUnresolved = 3 // --fail-on-unresolved found something
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func inputError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitInput, Message: fmt.Sprintf(format, args...)}
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
