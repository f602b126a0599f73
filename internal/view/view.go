// Package view projects the task list into rows and renders them.
//
// Renderers are read-only: they never mutate the list or talk to the store.
// User actions on a row reach the controller as commands.
package view

import (
	"strings"

	"solidtodo/internal/tasklist"
)

// Renderer is what the controller drives on every state change.
type Renderer interface {
	// ShowLogin presents the login affordance; nothing else is available.
	ShowLogin()

	// ShowConfig asks for the document URL.
	ShowConfig()

	// Render shows the tasks in stored order.
	Render(tasks []tasklist.Task)

	// Alert shows a message the user has to acknowledge.
	Alert(msg string)
}

// Row is one rendered task: a checkbox, a label and a delete affordance.
type Row struct {
	// Num is the 1-based position, usable as a task reference.
	Num     int
	ID      string
	Checked bool
	Label   string

	// Struck is set for done tasks; the label is drawn struck through.
	Struck bool
}

// Rows projects tasks into rows, one per task, in order.
func Rows(tasks []tasklist.Task) []Row {
	rows := make([]Row, len(tasks))
	for i, t := range tasks {
		rows[i] = Row{
			Num:     i + 1,
			ID:      t.ID,
			Checked: t.Done,
			Label:   normalizeLabel(t.Description),
			Struck:  t.Done,
		}
	}
	return rows
}

// normalizeLabel normalizes a task description for display.
// - Newlines are replaced with spaces
// - Empty or whitespace-only descriptions become "(untitled)"
func normalizeLabel(desc string) string {
	desc = strings.ReplaceAll(desc, "\r", " ")
	desc = strings.ReplaceAll(desc, "\n", " ")

	if strings.TrimSpace(desc) == "" {
		return "(untitled)"
	}
	return desc
}

// Checkbox returns the text form of a checkbox.
func Checkbox(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}
