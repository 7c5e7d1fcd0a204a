package commands

import (
	"context"
	"flag"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command.
type DoneCmd struct {
	flags planFlags
}

// SetPlan sets the plan file (for testing).
func (c *DoneCmd) SetPlan(path string) {
	c.flags.plan = path
}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return []string{"complete"} }
func (c *DoneCmd) Synopsis() string  { return "Mark a task completed" }
func (c *DoneCmd) Usage() string {
	return "prepsync done --plan <file> [--week <n>] <n | d<day> <title...>>"
}
func (c *DoneCmd) NeedsAuth() bool { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	c.flags.register(fs)
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	return runTaskAction(ctx, cfg, env, c.flags, args, out, errOut, env.Sync.Complete)
}
