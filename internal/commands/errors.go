package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"prepsync/internal/exitcode"
	"prepsync/internal/progress"
	"prepsync/internal/service"
)

// report prints err and returns the matching exit code.
func report(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(errOut, "error: cancelled")
		return exitcode.UserError
	case service.IsAuthError(err):
		fmt.Fprintf(errOut, "error: auth error: %v (run: prepsync login)\n", err)
		return exitcode.AuthError
	case errors.Is(err, progress.ErrPrepareFailed):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	case errors.Is(err, progress.ErrNotReady):
		fmt.Fprintf(errOut, "error: %v (run: prepsync init <plan-file>)\n", err)
		return exitcode.UserError
	case errors.Is(err, progress.ErrInvalidTransition),
		errors.Is(err, progress.ErrInFlight):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}
