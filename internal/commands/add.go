package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/controller"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	urlFlag
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Add a task" }
func (c *AddCmd) Usage() string     { return "solidtodo add --url <url> <text...>" }
func (c *AddCmd) NeedsAuth() bool   { return true }

func (c *AddCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.register(fs)
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		fmt.Fprintln(errOut, "error: task text required")
		return exitcode.UserError
	}

	doc, code := openDocument(ctx, cfg, sess, c.url, out, errOut)
	if doc == nil {
		return code
	}
	if code := doc.writable(ctx, errOut); code != exitcode.Success {
		return code
	}
	if code := doc.dispatch(ctx, controller.Add{Description: text}, errOut); code != exitcode.Success {
		doc.Close(ctx, false)
		return code
	}
	return doc.Close(ctx, !cfg.Quiet)
}
