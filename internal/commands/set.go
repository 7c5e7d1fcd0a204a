package commands

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/progress"
	"prepsync/internal/service"
)

func init() {
	Register(&SetCmd{})
}

// SetCmd implements the set command: any status, optional progress data.
type SetCmd struct {
	flags planFlags
	data  string
}

// SetPlan sets the plan file (for testing).
func (c *SetCmd) SetPlan(path string) {
	c.flags.plan = path
}

// SetData sets the progress data JSON (for testing).
func (c *SetCmd) SetData(data string) {
	c.data = data
}

func (c *SetCmd) Name() string      { return "set" }
func (c *SetCmd) Aliases() []string { return nil }
func (c *SetCmd) Synopsis() string  { return "Set a task's status and progress data" }
func (c *SetCmd) Usage() string {
	return "prepsync set --plan <file> [--week <n>] [--data <json>] <status> <n | d<day> <title...>>"
}
func (c *SetCmd) NeedsAuth() bool { return true }

func (c *SetCmd) RegisterFlags(fs *flag.FlagSet) {
	c.flags.register(fs)
	fs.StringVar(&c.data, "data", "", "")
}

func (c *SetCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "error: status required")
		return exitcode.UserError
	}
	status, ok := service.ParseStatus(args[0])
	if !ok {
		fmt.Fprintf(errOut, "error: invalid status: %s (want %s, %s or %s)\n",
			args[0], service.StatusNotStarted, service.StatusInProgress, service.StatusCompleted)
		return exitcode.UserError
	}

	var data json.RawMessage
	if c.data != "" {
		if !json.Valid([]byte(c.data)) {
			fmt.Fprintln(errOut, "error: --data is not valid JSON")
			return exitcode.UserError
		}
		data = json.RawMessage(c.data)
	}

	return runTaskAction(ctx, cfg, env, c.flags, args[1:], out, errOut,
		func(ctx context.Context, planID string, id progress.TaskIdentity) error {
			return env.Sync.UpdateStatus(ctx, planID, id, status, data)
		})
}
