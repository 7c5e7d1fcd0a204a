package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"
	"time"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/kv"
	"prepsync/internal/output"
)

func init() {
	Register(&TokenCmd{})
}

// TokenCmd implements the token command.
type TokenCmd struct {
	refresh bool
	print   bool
	watch   bool
}

// SetRefresh sets the --refresh flag (for testing).
func (c *TokenCmd) SetRefresh(v bool) { c.refresh = v }

// SetPrint sets the --print flag (for testing).
func (c *TokenCmd) SetPrint(v bool) { c.print = v }

func (c *TokenCmd) Name() string      { return "token" }
func (c *TokenCmd) Aliases() []string { return []string{"status"} }
func (c *TokenCmd) Synopsis() string  { return "Show the session token state" }
func (c *TokenCmd) Usage() string {
	return "prepsync token [common flags] [--refresh] [--print] [--watch]"
}
func (c *TokenCmd) NeedsAuth() bool   { return false }
func (c *TokenCmd) UsesSession() bool { return true }

func (c *TokenCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.refresh, "refresh", false, "")
	fs.BoolVar(&c.print, "print", false, "")
	fs.BoolVar(&c.watch, "watch", false, "")
}

func (c *TokenCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	if c.refresh || c.print {
		if !env.Tokens.SignedIn() {
			fmt.Fprintln(errOut, "error: not logged in (run: prepsync login)")
			return exitcode.AuthError
		}
		value, ok := env.Tokens.GetToken(ctx, c.refresh)
		if !ok {
			fmt.Fprintln(errOut, "error: no token available (run: prepsync login)")
			return exitcode.AuthError
		}
		if c.print {
			fmt.Fprintln(out, value)
			return exitcode.Success
		}
	}

	c.printStatus(env, out)
	if !c.watch {
		return exitcode.Success
	}

	// Another process refreshing the token rewrites the store.
	var mu sync.Mutex
	err := kv.Watch(ctx, env.Store.Path(), func() {
		mu.Lock()
		defer mu.Unlock()
		if err := env.Tokens.Credentials().Reload(); err != nil {
			env.Logger.Warnf("reload credentials: %v", err)
			return
		}
		env.Tokens.Ledger().Reload()
		fmt.Fprintf(out, "\n%s\n", time.Now().Format(time.TimeOnly))
		c.printStatus(env, out)
	})
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	return exitcode.Success
}

func (c *TokenCmd) printStatus(env *app.Env, out io.Writer) {
	ledger := env.Tokens.Ledger()
	output.FormatTokenStatus(out,
		env.Tokens.SignedIn(),
		env.Tokens.Credentials().Status(),
		ledger.State(),
		ledger.CooldownRemaining(time.Now()),
	)
}
