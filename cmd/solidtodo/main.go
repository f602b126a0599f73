// Package main is the entry point for the solidtodo CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"solidtodo/internal/cli"
	"solidtodo/internal/commands"
)

func main() {
	// Cancel on interrupt so a pending login or load unwinds cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, cli.OIDCSessionFactory)

	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
