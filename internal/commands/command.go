// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/session"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsAuth returns true if the command works on the remote document
	// and therefore requires a restored session.
	NeedsAuth() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *pflag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, settings, logger).
	// sess is nil for commands that never talk to the session provider.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int
}

// NeedsSession is implemented by commands that do not require a restored
// session but still use the provider, such as login.
type NeedsSession interface {
	NeedsSession() bool
}

// UsesSession reports whether the dispatcher must create a provider for c.
func UsesSession(c Command) bool {
	if c.NeedsAuth() {
		return true
	}
	if s, ok := c.(NeedsSession); ok {
		return s.NeedsSession()
	}
	return false
}
