// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown task, invalid transition).
	UserError = 1

	// AuthError indicates an auth/config error, including a 401 that survived the retry.
	AuthError = 2

	// BackendError indicates a backend/API/network error.
	BackendError = 3
)
