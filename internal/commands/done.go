package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/controller"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command. It toggles, so running it twice
// reopens the task.
type DoneCmd struct {
	urlFlag
}

func (c *DoneCmd) Name() string      { return "done" }
func (c *DoneCmd) Aliases() []string { return []string{"toggle"} }
func (c *DoneCmd) Synopsis() string  { return "Toggle a task's done state" }
func (c *DoneCmd) Usage() string     { return "solidtodo done --url <url> <ref>" }
func (c *DoneCmd) NeedsAuth() bool   { return true }

func (c *DoneCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.register(fs)
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	return editTask(ctx, cfg, sess, c.url, args, out, errOut, func(id string) controller.Command {
		return controller.Toggle{ID: id}
	})
}

// editTask resolves the single task reference in args and applies the
// command built for it.
func editTask(ctx context.Context, cfg *config.Config, sess session.Provider, url string, args []string, out, errOut io.Writer, build func(id string) controller.Command) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "error: task reference required")
		return exitcode.UserError
	}
	if len(args) > 1 {
		fmt.Fprintln(errOut, "error: too many arguments")
		return exitcode.UserError
	}

	doc, code := openDocument(ctx, cfg, sess, url, out, errOut)
	if doc == nil {
		return code
	}
	if code := doc.writable(ctx, errOut); code != exitcode.Success {
		return code
	}

	task, ok := doc.resolve(args[0], errOut)
	if !ok {
		doc.Close(ctx, false)
		return exitcode.UserError
	}
	if code := doc.dispatch(ctx, build(task.ID), errOut); code != exitcode.Success {
		doc.Close(ctx, false)
		return code
	}
	return doc.Close(ctx, !cfg.Quiet)
}
