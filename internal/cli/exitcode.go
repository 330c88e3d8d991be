package cli

import (
	"errors"
	"syscall"

	tg "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1"
	tgerrors "github.com/gxo-labs/taskgraph/pkg/taskgraph/v1/errors"
)

// Process exit codes.
const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitUsageError = 2
	ExitTimeout    = 124
	ExitSigIntBase = 128
	ExitSigInt     = ExitSigIntBase + int(syscall.SIGINT)
	ExitSigTerm    = ExitSigIntBase + int(syscall.SIGTERM)
)

// usageError marks errors in how the command was invoked.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// timeoutError marks a pass stopped by the --timeout deadline. A task that
// hits its own step timeout is an ordinary task failure.
type timeoutError struct{ err error }

func (e *timeoutError) Error() string { return e.err.Error() }
func (e *timeoutError) Unwrap() error { return e.err }

// exitCodeFor maps the outcome of a command to a process exit code.
func exitCodeFor(report *tg.ExecutionReport, err error) int {
	if err == nil {
		if report != nil && report.OverallStatus != tg.PassCompleted {
			return ExitFailure
		}
		return ExitSuccess
	}
	var usage *usageError
	var timeout *timeoutError
	switch {
	case errors.As(err, &timeout):
		return ExitTimeout
	case errors.As(err, &usage), tgerrors.IsConfigError(err):
		return ExitUsageError
	default:
		return ExitFailure
	}
}
