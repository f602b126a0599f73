package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "solidtodo help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }

func (c *HelpCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  solidtodo list [common flags] --url <url>           List tasks
  solidtodo add [common flags] --url <url> <text...>  Add a task
  solidtodo done [common flags] --url <url> <ref>     Toggle a task (alias: toggle)
  solidtodo rm [common flags] --url <url> <ref>       Delete a task
  solidtodo tui [common flags] [--url <url>]          Interactive task list
  solidtodo import-gtasks [common flags] --url <url> [--list <list-name>] [--login]
  solidtodo login [common flags]
  solidtodo logout [common flags]
  solidtodo help
  solidtodo version

<ref> is a task id or a row number as printed by list. An id that
matches exactly wins over a row number.

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
