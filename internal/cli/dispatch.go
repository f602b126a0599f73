package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"solidtodo/internal/commands"
	"solidtodo/internal/config"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
)

// SessionFactory creates the session provider from config.
// Used to inject the provider during dispatch.
type SessionFactory func(ctx context.Context, cfg *config.Config, errOut io.Writer) (session.Provider, error)

// OIDCSessionFactory creates the OIDC provider backed by session.json in
// the config directory. Login instructions go to errOut.
func OIDCSessionFactory(ctx context.Context, cfg *config.Config, errOut io.Writer) (session.Provider, error) {
	return session.NewOIDCProvider(session.OIDCOptions{
		SessionPath:  cfg.SessionPath(),
		ClientSecret: cfg.Settings.ClientSecret,
		Scopes:       cfg.Settings.Scopes,
		Out:          errOut,
		Logger:       cfg.Log,
	}), nil
}

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  SessionFactory
}

// NewDispatcher creates a new dispatcher with the given registry and session
// factory. A nil factory selects OIDCSessionFactory.
func NewDispatcher(registry *commands.Registry, factory SessionFactory) *Dispatcher {
	if factory == nil {
		factory = OIDCSessionFactory
	}
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	// Every task command needs --url, so a bare invocation prints usage.
	if len(args) == 0 {
		return d.dispatch(ctx, "help", nil, out, errOut)
	}

	cmdName := args[0]

	// Flags require a command.
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
	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	// Common flags
	var configDir string
	var quiet bool
	var debug bool

	fs.StringVar(&configDir, "config", "", "")
	fs.BoolVar(&quiet, "quiet", false, "")
	fs.BoolVar(&debug, "debug", false, "")

	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(out, "Usage: %s\n", cmd.Usage())
			return exitcode.Success
		}
		// pflag messages already read "unknown flag: --x" or
		// "flag needs an argument: --url".
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}

	cfg, err := config.New(configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: config error: %s\n", err)
		return exitcode.AuthError
	}
	cfg.Quiet = quiet
	cfg.Debug = debug
	cfg.Log = cfg.NewLogger(errOut)

	var sess session.Provider
	if commands.UsesSession(cmd) {
		sess, err = d.factory(ctx, cfg, errOut)
		if err != nil {
			fmt.Fprintf(errOut, "error: auth error: %s\n", err)
			return exitcode.AuthError
		}
	}

	cfg.Log.Debug("dispatch", "command", cmd.Name(), "config", cfg.Dir)
	return cmd.Run(ctx, cfg, sess, fs.Args(), out, errOut)
}
