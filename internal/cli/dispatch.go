package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"prepsync/internal/app"
	"prepsync/internal/commands"
	"prepsync/internal/config"
	"prepsync/internal/exitcode"
	"prepsync/internal/logging"
	"prepsync/internal/session"
)

// EnvFactory builds the session and sync stack from config.
// Used to inject the backend during dispatch.
type EnvFactory func(ctx context.Context, cfg *config.Config, errOut io.Writer) (*app.Env, error)

// DefaultFactory builds the production stack. Logs and the quota notice go
// to errOut.
func DefaultFactory(ctx context.Context, cfg *config.Config, errOut io.Writer) (*app.Env, error) {
	return app.Build(cfg, app.Options{
		Logger: NewLogger(cfg, errOut),
		Notifier: session.NotifierFunc(func(msg string) {
			fmt.Fprintf(errOut, "warning: %s\n", msg)
		}),
	})
}

// NewLogger returns the logger for cfg: debug level with --debug, otherwise
// the level from settings.yaml.
func NewLogger(cfg *config.Config, w io.Writer) *logging.Logger {
	level := logging.ParseLevel(cfg.Settings.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.New(w, level)
}

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  EnvFactory
}

// NewDispatcher creates a new dispatcher with the given registry and env factory.
// A nil factory uses DefaultFactory.
func NewDispatcher(registry *commands.Registry, factory EnvFactory) *Dispatcher {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// No args -> help
	if len(args) == 0 {
		return d.dispatch(ctx, "help", nil, out, errOut)
	}

	cmdName := args[0]

	// Flags require a command
	if strings.HasPrefix(cmdName, "-") {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}

	return d.dispatch(ctx, cmdName, args[1:], out, errOut)
}

func (d *Dispatcher) dispatch(ctx context.Context, cmdName string, args []string, out, errOut io.Writer) int {
	cmd, ok := d.registry.Find(cmdName)
	if !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", cmdName)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, args, out, errOut)
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // We handle errors ourselves

	// Common flags
	var configDir string
	var quiet bool
	var debug bool

	fs.StringVar(&configDir, "config", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")

	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		return flagError(errOut, err)
	}

	// A positional arg starting with - should have been parsed as a flag
	positionalArgs := fs.Args()
	if len(positionalArgs) > 0 && strings.HasPrefix(positionalArgs[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positionalArgs[0])
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug

	var env *app.Env
	if commands.NeedsEnv(cmd) {
		env, err = d.factory(ctx, cfg, errOut)
		if err != nil {
			fmt.Fprintf(errOut, "error: %s\n", err)
			return exitcode.UserError
		}
		defer func() {
			if err := env.Close(); err != nil {
				env.Logger.Warnf("close session store: %v", err)
			}
		}()

		if cmd.NeedsAuth() && !env.Tokens.SignedIn() {
			if !cfg.HasOAuthClient() && env.OAuth == nil {
				fmt.Fprintf(errOut, "error: %s not found in %s\n", config.OAuthClientFile, cfg.Dir)
				return exitcode.AuthError
			}
			fmt.Fprintln(errOut, "error: not logged in (run: prepsync login)")
			return exitcode.AuthError
		}
	}

	return cmd.Run(ctx, cfg, env, positionalArgs, out, errOut)
}

// flagError reports a flag parsing error.
func flagError(errOut io.Writer, err error) int {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "flag needs an argument"):
		flagPart := strings.TrimSpace(strings.TrimPrefix(errStr, "flag needs an argument:"))
		fmt.Fprintf(errOut, "error: flag needs an argument: %s\n", flagPart)
	case strings.HasPrefix(errStr, "flag provided but not defined:"):
		flagName := strings.TrimPrefix(errStr, "flag provided but not defined: ")
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", flagName)
	default:
		fmt.Fprintf(errOut, "error: %s\n", errStr)
	}
	return exitcode.UserError
}
