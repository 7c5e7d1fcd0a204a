package commands

import (
	"context"
	"flag"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
)

func init() {
	Register(&StartCmd{})
}

// StartCmd implements the start command.
type StartCmd struct {
	flags planFlags
}

// SetPlan sets the plan file (for testing).
func (c *StartCmd) SetPlan(path string) {
	c.flags.plan = path
}

func (c *StartCmd) Name() string      { return "start" }
func (c *StartCmd) Aliases() []string { return nil }
func (c *StartCmd) Synopsis() string  { return "Mark a not-started task in progress" }
func (c *StartCmd) Usage() string {
	return "prepsync start --plan <file> [--week <n>] <n | d<day> <title...>>"
}
func (c *StartCmd) NeedsAuth() bool { return true }

func (c *StartCmd) RegisterFlags(fs *flag.FlagSet) {
	c.flags.register(fs)
}

func (c *StartCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	return runTaskAction(ctx, cfg, env, c.flags, args, out, errOut, env.Sync.Start)
}
