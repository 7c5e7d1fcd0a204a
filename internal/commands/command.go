// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command requires a signed-in session.
	// Commands like help, version, login, logout return false.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths, settings).
	// env is nil unless NeedsAuth() returns true or the command implements
	// SessionCommand.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int
}

// SessionCommand is implemented by commands that work on the stored
// session without requiring a signed-in user (login, logout, token).
type SessionCommand interface {
	UsesSession() bool
}

// NeedsEnv reports whether the dispatcher must build an Env for c.
func NeedsEnv(c Command) bool {
	if c.NeedsAuth() {
		return true
	}
	sc, ok := c.(SessionCommand)
	return ok && sc.UsesSession()
}
