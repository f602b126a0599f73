package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/docstore"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
	"solidtodo/internal/tui"
)

// TUILogFile receives debug logs while the interactive UI owns the terminal.
const TUILogFile = "tui.log"

func init() {
	Register(&TUICmd{})
}

// TUICmd implements the tui command.
type TUICmd struct {
	urlFlag
}

func (c *TUICmd) Name() string       { return "tui" }
func (c *TUICmd) Aliases() []string  { return nil }
func (c *TUICmd) Synopsis() string   { return "Interactive task list" }
func (c *TUICmd) Usage() string      { return "solidtodo tui [--url <url>]" }
func (c *TUICmd) NeedsAuth() bool    { return false }
func (c *TUICmd) NeedsSession() bool { return true }

func (c *TUICmd) RegisterFlags(fs *pflag.FlagSet) {
	c.register(fs)
}

func (c *TUICmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	logger, closeLog, err := tuiLogger(cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	defer closeLog()

	opts := controllerOptions(cfg)
	opts.Logger = logger

	failed, err := tui.Run(ctx, sess, docstore.New(sess, logger), tui.Options{
		Controller: opts,
		URL:        c.url,
	})
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	if failed > 0 {
		fmt.Fprintf(errOut, "error: %d save(s) failed\n", failed)
		return exitcode.BackendError
	}
	return exitcode.Success
}

// tuiLogger keeps log output off the terminal: discarded normally, written
// to tui.log in the config directory with --debug.
func tuiLogger(cfg *config.Config) (*log.Logger, func(), error) {
	if !cfg.Debug {
		return log.New(io.Discard), func() {}, nil
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, nil, fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.Dir, TUILogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return cfg.NewLogger(f), func() { f.Close() }, nil
}
