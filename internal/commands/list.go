package commands

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/session"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
type ListCmd struct {
	urlFlag
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string     { return "solidtodo list --url <url>" }
func (c *ListCmd) NeedsAuth() bool   { return true }

func (c *ListCmd) RegisterFlags(fs *pflag.FlagSet) {
	c.register(fs)
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	doc, code := openDocument(ctx, cfg, sess, c.url, out, errOut)
	if doc == nil {
		return code
	}
	return doc.Close(ctx, true)
}
