package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"solidtodo/internal/config"
	"solidtodo/internal/controller"
	"solidtodo/internal/docstore"
	"solidtodo/internal/exitcode"
	"solidtodo/internal/session"
	"solidtodo/internal/tasklist"
	"solidtodo/internal/view"
)

// NewID overrides task id generation in tests.
var NewID tasklist.IDFunc

// urlFlag is embedded by commands that operate on a task document.
type urlFlag struct {
	url string
}

func (f *urlFlag) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.url, "url", "", "")
}

// controllerOptions builds the controller options from the settings.
func controllerOptions(cfg *config.Config) controller.Options {
	return controller.Options{
		Issuer:      cfg.Settings.Issuer,
		RedirectURL: cfg.Settings.RedirectURL(),
		ClientName:  cfg.Settings.ClientName,
		ClientID:    cfg.Settings.ClientID,
		NewID:       NewID,
		Logger:      cfg.Log,
	}
}

// document is a loaded task document for one CLI invocation. Rendering is
// deferred to Close so a command prints the list once, in its final state.
type document struct {
	ctrl *controller.Controller
	text *view.TextRenderer
	last *[]tasklist.Task
}

// deferredRenderer keeps the last rendered list and passes alerts through.
type deferredRenderer struct {
	*view.TextRenderer
	last *[]tasklist.Task
}

func (r deferredRenderer) ShowLogin()  {}
func (r deferredRenderer) ShowConfig() {}

func (r deferredRenderer) Render(tasks []tasklist.Task) {
	*r.last = tasks
}

// openDocument restores the session and loads url. On failure it prints
// the error and returns a non-zero exit code.
func openDocument(ctx context.Context, cfg *config.Config, sess session.Provider, url string, out, errOut io.Writer) (*document, int) {
	url = strings.TrimSpace(url)
	if url == "" {
		fmt.Fprintln(errOut, "error: document URL required (use --url)")
		return nil, exitcode.UserError
	}

	text := view.NewTextRenderer(out, errOut)
	text.Quiet = cfg.Quiet
	last := new([]tasklist.Task)
	renderer := deferredRenderer{TextRenderer: text, last: last}

	ctrl := controller.New(sess, docstore.New(sess, cfg.Log), renderer, controllerOptions(cfg))
	if err := ctrl.Start(ctx); err != nil {
		ctrl.Close(ctx)
		fmt.Fprintf(errOut, "error: auth error: %v\n", err)
		return nil, exitcode.AuthError
	}
	if ctrl.State() != controller.ConfigPending {
		ctrl.Close(ctx)
		fmt.Fprintln(errOut, "error: not logged in (run: solidtodo login)")
		return nil, exitcode.AuthError
	}
	if err := ctrl.Dispatch(ctx, controller.Load{URL: url}); err != nil {
		ctrl.Close(ctx)
		fmt.Fprintf(errOut, "error: %v\n", err)
		return nil, exitcode.UserError
	}
	return &document{ctrl: ctrl, text: text, last: last}, exitcode.Success
}

// writable refuses edits when the load fell back to an empty list: saving
// it would overwrite the document the store still holds.
func (d *document) writable(ctx context.Context, errOut io.Writer) int {
	err := d.ctrl.LoadErr()
	if err == nil {
		return exitcode.Success
	}
	d.ctrl.Close(ctx)
	fmt.Fprintf(errOut, "error: backend error: %v (not saving)\n", err)
	return exitcode.BackendError
}

// resolve finds the task a row number or id refers to.
func (d *document) resolve(ref string, errOut io.Writer) (tasklist.Task, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		fmt.Fprintln(errOut, "error: task reference required")
		return tasklist.Task{}, false
	}
	task, ok := d.ctrl.Lookup(ref)
	if !ok {
		fmt.Fprintf(errOut, "error: task not found: %s\n", ref)
		return tasklist.Task{}, false
	}
	return task, true
}

// dispatch applies an edit.
func (d *document) dispatch(ctx context.Context, cmd controller.Command, errOut io.Writer) int {
	if err := d.ctrl.Dispatch(ctx, cmd); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		if errors.Is(err, controller.ErrNotAuthenticated) {
			return exitcode.AuthError
		}
		return exitcode.UserError
	}
	return exitcode.Success
}

// Close waits for pending saves, renders the final list and returns
// BackendError if any save failed. Save failures were already reported
// through the renderer.
func (d *document) Close(ctx context.Context, render bool) int {
	d.ctrl.Close(ctx)
	if render {
		d.text.Render(*d.last)
	}
	if failed, _ := d.ctrl.SaveFailures(); failed > 0 {
		return exitcode.BackendError
	}
	return exitcode.Success
}
