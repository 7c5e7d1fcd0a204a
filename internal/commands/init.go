package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/progress"
)

func init() {
	Register(&InitCmd{})
}

// InitCmd implements the init command.
type InitCmd struct{}

func (c *InitCmd) Name() string      { return "init" }
func (c *InitCmd) Aliases() []string { return []string{"prepare"} }
func (c *InitCmd) Synopsis() string  { return "Create progress records for every task of a plan" }
func (c *InitCmd) Usage() string     { return "prepsync init [common flags] <plan-file>" }
func (c *InitCmd) NeedsAuth() bool   { return true }

func (c *InitCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *InitCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: plan file required")
		return exitcode.UserError
	}

	plan, err := progress.LoadPlan(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	if err := env.Sync.EnsureInitialized(ctx, plan.ID, plan.Tasks); err != nil {
		return report(errOut, err)
	}

	if !cfg.Quiet {
		idx := env.Sync.ReadIndex(plan.ID)
		fmt.Fprintf(out, "%s: %d of %d tasks ready\n", plan.ID, idx.Len(), len(plan.Tasks))
	}
	return exitcode.Success
}
