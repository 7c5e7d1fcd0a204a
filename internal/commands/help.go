package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"prepsync/internal/app"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "prepsync help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, env *app.Env, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  prepsync init [common flags] <plan-file>          Create progress records for a plan
  prepsync sync [common flags] <plan-file...>       Load progress for one or more plans
  prepsync show [common flags] <plan-file>          List a plan's tasks with their progress
  prepsync start [common flags] --plan <file> [--week <n>] <ref>
  prepsync done [common flags] --plan <file> [--week <n>] <ref>
  prepsync set [common flags] --plan <file> [--week <n>] [--data <json>] <status> <ref>
  prepsync token [common flags] [--refresh] [--print] [--watch]
  prepsync login [common flags]
  prepsync logout [common flags]
  prepsync help
  prepsync version

Task references:
  <n>                  Task number as printed by show
  d<day> <title...>    Task by day and exact title

Statuses:
  not-started, in-progress, completed

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
