package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/controller"
	"solidtodo/internal/docstore"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
	"solidtodo/internal/view"
)

func init() {
	Register(&LoginCmd{})
}

// LoginCmd implements the login command.
type LoginCmd struct{}

func (c *LoginCmd) Name() string       { return "login" }
func (c *LoginCmd) Aliases() []string  { return nil }
func (c *LoginCmd) Synopsis() string   { return "Log in to the identity provider" }
func (c *LoginCmd) Usage() string      { return "solidtodo login [common flags]" }
func (c *LoginCmd) NeedsAuth() bool    { return false }
func (c *LoginCmd) NeedsSession() bool { return true }

func (c *LoginCmd) RegisterFlags(fs *pflag.FlagSet) {}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, sess session.Provider, args []string, out, errOut io.Writer) int {
	renderer := view.NewTextRenderer(out, errOut)
	ctrl := controller.New(sess, docstore.New(sess, cfg.Log), renderer, controllerOptions(cfg))
	defer ctrl.Close(ctx)

	// A failed restore (revoked or expired session) falls through to a
	// fresh login.
	ctrl.Start(ctx)
	if ctrl.State() == controller.ConfigPending {
		if !cfg.Quiet {
			fmt.Fprintln(out, "already logged in")
		}
		return exitcode.Success
	}

	if err := ctrl.Dispatch(ctx, controller.Login{}); err != nil {
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return exitcode.AuthError
	}
	if ctrl.State() != controller.ConfigPending {
		fmt.Fprintln(errOut, "error: login did not complete")
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
