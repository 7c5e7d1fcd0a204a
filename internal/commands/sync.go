package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/output"
	"prepsync/internal/progress"
)

// maxParallelPlans bounds concurrent plan loads.
const maxParallelPlans = 4

func init() {
	Register(&SyncCmd{})
}

// SyncCmd implements the sync command.
type SyncCmd struct{}

func (c *SyncCmd) Name() string      { return "sync" }
func (c *SyncCmd) Aliases() []string { return nil }
func (c *SyncCmd) Synopsis() string  { return "Load progress for one or more plans" }
func (c *SyncCmd) Usage() string     { return "prepsync sync [common flags] <plan-file...>" }
func (c *SyncCmd) NeedsAuth() bool   { return true }

func (c *SyncCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *SyncCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "error: plan file required")
		return exitcode.UserError
	}

	plans := make([]progress.Plan, len(args))
	seen := make(map[string]string)
	for i, path := range args {
		p, err := progress.LoadPlan(path)
		if err != nil {
			fmt.Fprintf(errOut, "error: %s: %v\n", path, err)
			return exitcode.UserError
		}
		if prev, dup := seen[p.ID]; dup {
			fmt.Fprintf(errOut, "error: plan %s appears in both %s and %s\n", p.ID, prev, path)
			return exitcode.UserError
		}
		seen[p.ID] = path
		plans[i] = p
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPlans)
	for _, p := range plans {
		if len(p.Tasks) == 0 {
			continue
		}
		g.Go(func() error {
			if err := env.Sync.Load(gctx, p.ID, p.Tasks); err != nil {
				return fmt.Errorf("%s: %w", p.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report(errOut, err)
	}

	if !cfg.Quiet {
		for _, p := range plans {
			output.FormatSummary(out, p.ID, len(p.Tasks), env.Sync.ReadIndex(p.ID).Snapshot())
		}
	}
	return exitcode.Success
}
