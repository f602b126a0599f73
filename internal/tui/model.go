// Package tui is the interactive front end: a bubbletea program that drives
// the controller through login, document selection and editing.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"solidtodo/internal/controller"
	"solidtodo/internal/view"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	doneStyle   = lipgloss.NewStyle().Strikethrough(true).Faint(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// changedMsg is sent when the renderer was updated.
type changedMsg struct{}

// doneMsg ends a blocking controller call. url is the document a
// successful load opened.
type doneMsg struct {
	err error
	url string
}

// Model is the bubbletea model.
type Model struct {
	ctx      context.Context
	ctrl     *controller.Controller
	renderer *Renderer

	// url is loaded right after start when already logged in.
	url string

	// fileURL is the open document. View and Update read it here instead of
	// asking the controller, which stays locked during a load.
	fileURL string

	view    snapshot
	cursor  int
	input   textinput.Model
	adding  bool
	busy    string
	err     string
	quitted bool
}

// NewModel creates a model. renderer must be the one ctrl renders to.
func NewModel(ctx context.Context, ctrl *controller.Controller, renderer *Renderer, url string) Model {
	input := textinput.New()
	input.CharLimit = 2048
	input.Width = 60

	return Model{
		ctx:      ctx,
		ctrl:     ctrl,
		renderer: renderer,
		url:      strings.TrimSpace(url),
		input:    input,
		busy:     "Restoring session…",
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), m.start())
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.renderer.Changed()
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m Model) start() tea.Cmd {
	ctx, ctrl, url := m.ctx, m.ctrl, m.url
	return func() tea.Msg {
		err := ctrl.Start(ctx)
		if err == nil && url != "" && ctrl.State() == controller.ConfigPending {
			err = ctrl.Dispatch(ctx, controller.Load{URL: url})
			if err == nil {
				return doneMsg{url: url}
			}
		}
		return doneMsg{err: err}
	}
}

// run executes a blocking controller command off the UI goroutine.
func (m Model) run(cmd controller.Command) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		msg := doneMsg{err: ctrl.Dispatch(ctx, cmd)}
		if load, ok := cmd.(controller.Load); ok && msg.err == nil {
			msg.url = strings.TrimSpace(load.URL)
		}
		return msg
	}
}

func (m Model) quit() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		ctrl.Flush(ctx)
		return tea.Quit()
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.sync()
		return m, m.waitForChange()

	case doneMsg:
		m.busy = ""
		m.err = ""
		if msg.url != "" {
			m.fileURL = msg.url
		}
		if msg.err != nil && !errors.Is(msg.err, controller.ErrEmptyURL) {
			m.err = msg.err.Error()
		}
		m.sync()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.beginQuit()
		}
		if m.busy != "" || m.quitted {
			return m, nil
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) beginQuit() (tea.Model, tea.Cmd) {
	m.quitted = true
	m.busy = "Saving…"
	return m, m.quit()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.view.screen {
	case screenLogin:
		switch msg.String() {
		case "l", "enter":
			m.busy = "Waiting for login in the browser…"
			m.err = ""
			return m, m.run(controller.Login{})
		case "q", "esc":
			return m.beginQuit()
		}
		return m, nil

	case screenURL:
		switch msg.String() {
		case "enter":
			url := m.input.Value()
			if strings.TrimSpace(url) == "" {
				m.dispatch(controller.Load{URL: url})
				return m, nil
			}
			m.busy = "Loading…"
			return m, m.run(controller.Load{URL: url})
		case "esc":
			return m.beginQuit()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case screenList:
		if m.adding {
			return m.handleAddKey(msg)
		}
		return m.handleListKey(msg)
	}
	return m, nil
}

func (m Model) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.dispatch(controller.Add{Description: m.input.Value()})
		m.adding = false
		m.input.Reset()
		m.input.Blur()
		// Put the cursor on the new row.
		m.cursor = len(m.view.tasks) - 1
		m.clamp()
		return m, nil
	case "esc":
		m.adding = false
		m.input.Reset()
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		m.cursor++
		m.clamp()
	case "k", "up":
		m.cursor--
		m.clamp()
	case " ", "x":
		if task, ok := m.current(); ok {
			m.dispatch(controller.Toggle{ID: task.ID})
		}
	case "d":
		if task, ok := m.current(); ok {
			m.dispatch(controller.Delete{ID: task.ID})
		}
	case "a":
		m.adding = true
		m.input.Reset()
		m.input.Placeholder = "New task"
		return m, m.input.Focus()
	case "r":
		m.busy = "Reloading…"
		return m, m.run(controller.Load{URL: m.fileURL})
	case "q":
		return m.beginQuit()
	}
	return m, nil
}

// dispatch applies a command that never waits on the network: edits, whose
// saves are queued, and the empty-URL check.
func (m *Model) dispatch(cmd controller.Command) {
	m.renderer.clearAlert()
	m.err = ""
	if err := m.ctrl.Dispatch(m.ctx, cmd); err != nil && !errors.Is(err, controller.ErrEmptyURL) {
		m.err = err.Error()
	}
	m.sync()
}

func (m *Model) sync() {
	prev := m.view.screen
	m.view = m.renderer.snapshot()
	if m.view.screen == screenURL && prev != screenURL {
		m.input.Reset()
		m.input.Placeholder = "https://pod.example/tasks.json"
		m.input.Focus()
	}
	m.clamp()
}

func (m *Model) clamp() {
	if m.cursor >= len(m.view.tasks) {
		m.cursor = len(m.view.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) current() (view.Row, bool) {
	rows := view.Rows(m.view.tasks)
	if m.cursor < 0 || m.cursor >= len(rows) {
		return view.Row{}, false
	}
	return rows[m.cursor], true
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Solid To-Do"))
	b.WriteString("\n\n")

	switch m.view.screen {
	case screenStarting:
	case screenLogin:
		b.WriteString("Not logged in. Log in to continue.\n\n")
		b.WriteString(faintStyle.Render("l: log in  q: quit"))
		b.WriteString("\n")
	case screenURL:
		b.WriteString(controller.EmptyURLPrompt + "\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(faintStyle.Render("enter: load  esc: quit"))
		b.WriteString("\n")
	case screenList:
		m.writeList(&b)
	}

	if len(m.view.notice) > 0 && (m.busy != "" || m.view.screen == screenLogin) {
		for _, line := range m.view.notice {
			b.WriteString("\n" + line)
		}
		b.WriteString("\n")
	}
	if m.busy != "" {
		b.WriteString("\n" + faintStyle.Render(m.busy) + "\n")
	}
	if m.view.alert != "" {
		b.WriteString("\n" + alertStyle.Render(m.view.alert) + "\n")
	}
	if m.err != "" {
		b.WriteString("\n" + alertStyle.Render("error: "+m.err) + "\n")
	}
	return b.String()
}

func (m Model) writeList(b *strings.Builder) {
	b.WriteString(faintStyle.Render(m.fileURL))
	b.WriteString("\n\n")

	rows := view.Rows(m.view.tasks)
	if len(rows) == 0 {
		b.WriteString(faintStyle.Render("no tasks"))
		b.WriteString("\n")
	}
	for i, row := range rows {
		pointer := "  "
		if i == m.cursor && !m.adding {
			pointer = cursorStyle.Render("> ")
		}
		label := row.Label
		if row.Struck {
			label = doneStyle.Render(label)
		}
		fmt.Fprintf(b, "%s%s %s\n", pointer, view.Checkbox(row.Checked), label)
	}

	b.WriteString("\n")
	if m.adding {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(faintStyle.Render("enter: add  esc: cancel"))
	} else {
		b.WriteString(faintStyle.Render("a: add  space: toggle  d: delete  r: reload  q: quit"))
	}
	b.WriteString("\n")
}
