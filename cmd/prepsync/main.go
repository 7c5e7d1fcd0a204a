// Package main is the entry point for the prepsync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"prepsync/internal/cli"
	"prepsync/internal/commands"
)

func main() {
	// Cancel on interrupt so token --watch and pending requests stop cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, cli.DefaultFactory)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
