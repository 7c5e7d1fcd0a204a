package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/output"
	"prepsync/internal/progress"
)

func init() {
	Register(&ShowCmd{})
}

// ShowCmd implements the show command.
type ShowCmd struct{}

func (c *ShowCmd) Name() string      { return "show" }
func (c *ShowCmd) Aliases() []string { return []string{"ls"} }
func (c *ShowCmd) Synopsis() string  { return "List a plan's tasks with their progress" }
func (c *ShowCmd) Usage() string     { return "prepsync show [common flags] <plan-file>" }
func (c *ShowCmd) NeedsAuth() bool   { return true }

func (c *ShowCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ShowCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: plan file required")
		return exitcode.UserError
	}

	plan, err := progress.LoadPlan(args[0])
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	if len(plan.Tasks) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
		return exitcode.Success
	}

	if err := env.Sync.Load(ctx, plan.ID, plan.Tasks); err != nil {
		return report(errOut, err)
	}

	idx := env.Sync.ReadIndex(plan.ID)
	output.FormatPlanHeader(out, plan.ID, plan.Week)
	for i, task := range plan.Tasks {
		entry, ok := idx.Lookup(progress.IdentityOf(task))
		output.FormatTask(out, i+1, task, entry, ok)
	}
	return exitcode.Success
}
