package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"solidtodo/internal/controller"
	"solidtodo/internal/session"
)

// Options configures Run.
type Options struct {
	Controller controller.Options

	// URL, if set, is loaded as soon as a session is available.
	URL string

	In  io.Reader
	Out io.Writer
}

// outputSetter is implemented by providers that print login instructions.
type outputSetter interface {
	SetOutput(w io.Writer)
}

// Run starts the interactive program and blocks until the user quits.
// Pending saves are flushed before it returns; the returned count is the
// number of saves that failed during the session.
func Run(ctx context.Context, provider session.Provider, store controller.Store, opts Options) (int, error) {
	renderer := NewRenderer()
	if setter, ok := provider.(outputSetter); ok {
		setter.SetOutput(renderer)
	}

	ctrl := controller.New(provider, store, renderer, opts.Controller)

	var programOpts []tea.ProgramOption
	programOpts = append(programOpts, tea.WithContext(ctx))
	if opts.In != nil {
		programOpts = append(programOpts, tea.WithInput(opts.In))
	}
	if opts.Out != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Out))
	}

	program := tea.NewProgram(NewModel(ctx, ctrl, renderer, opts.URL), programOpts...)
	_, err := program.Run()

	ctrl.Close(context.Background())
	failed, _ := ctrl.SaveFailures()
	return failed, err
}
