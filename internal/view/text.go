package view

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"solidtodo/internal/tasklist"
)

// TextRenderer writes the list as numbered lines.
// Format: "{N:>4}  [x] {LABEL}\n"
type TextRenderer struct {
	out    io.Writer
	errOut io.Writer

	// Prompts enables the login and URL prompts. The one-shot CLI
	// validates its flags up front and leaves this off.
	Prompts bool

	// Quiet suppresses the "no tasks" line for an empty list.
	Quiet bool

	done  lipgloss.Style
	faint lipgloss.Style
}

// NewTextRenderer creates a renderer writing rows to out and alerts to
// errOut. Styling follows out's color profile, so plain writers get plain
// text.
func NewTextRenderer(out, errOut io.Writer) *TextRenderer {
	r := lipgloss.NewRenderer(out)
	return &TextRenderer{
		out:    out,
		errOut: errOut,
		done:   r.NewStyle().Strikethrough(true).Faint(true),
		faint:  r.NewStyle().Faint(true),
	}
}

// ShowLogin implements Renderer.
func (r *TextRenderer) ShowLogin() {
	if r.Prompts {
		fmt.Fprintln(r.out, "Not logged in. Log in to continue.")
	}
}

// ShowConfig implements Renderer.
func (r *TextRenderer) ShowConfig() {
	if r.Prompts {
		fmt.Fprintln(r.out, "Enter the full URL for tasks.json")
	}
}

// Render implements Renderer.
func (r *TextRenderer) Render(tasks []tasklist.Task) {
	rows := Rows(tasks)
	if len(rows) == 0 {
		if !r.Quiet {
			fmt.Fprintln(r.out, r.faint.Render("no tasks"))
		}
		return
	}
	for _, row := range rows {
		label := row.Label
		if row.Struck {
			label = r.done.Render(label)
		}
		fmt.Fprintf(r.out, "%4d  %s %s\n", row.Num, Checkbox(row.Checked), label)
	}
}

// Alert implements Renderer.
func (r *TextRenderer) Alert(msg string) {
	fmt.Fprintf(r.errOut, "error: %s\n", msg)
}
