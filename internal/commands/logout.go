package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/session"
)

func init() {
	Register(&LogoutCmd{})
}

// LogoutCmd implements the logout command.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "prepsync logout [common flags]" }
func (c *LogoutCmd) NeedsAuth() bool   { return false }
func (c *LogoutCmd) UsesSession() bool { return true }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	_, hasRefresh, err := env.Store.Get(session.KeyRefreshToken)
	if err != nil {
		fmt.Fprintf(errOut, "error: failed to read session: %v\n", err)
		return exitcode.AuthError
	}
	if !hasRefresh && env.Tokens.Credentials().Last() == nil {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}

	if err := env.Store.Delete(session.KeyRefreshToken); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove session: %v\n", err)
		return exitcode.AuthError
	}
	if err := env.Tokens.SignOut(); err != nil {
		fmt.Fprintf(errOut, "error: failed to remove session: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
