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

// planFlags are the flags shared by commands that act on one task.
type planFlags struct {
	plan string
	week int
}

func (f *planFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.plan, "plan", "", "")
	fs.StringVar(&f.plan, "p", "", "")
	fs.IntVar(&f.week, "week", 0, "")
	fs.IntVar(&f.week, "w", 0, "")
}

type taskAction func(ctx context.Context, planID string, id progress.TaskIdentity) error

// runTaskAction loads the plan file, refreshes the plan's index from the
// server (initializing it when the server has no records) and applies act
// to the referenced task.
func runTaskAction(ctx context.Context, cfg *config.Config, env *app.Env, flags planFlags, args []string, out, errOut io.Writer, act taskAction) int {
	if flags.plan == "" {
		fmt.Fprintln(errOut, "error: --plan required")
		return exitcode.UserError
	}

	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	plan, err := progress.LoadPlan(flags.plan)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	id, err := ref.Resolve(plan, flags.week)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	if err := env.Sync.Load(ctx, plan.ID, plan.Tasks); err != nil {
		return report(errOut, err)
	}
	if err := act(ctx, plan.ID, id); err != nil {
		return report(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
