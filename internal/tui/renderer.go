package tui

import (
	"strings"
	"sync"

	"solidtodo/internal/tasklist"
	"solidtodo/internal/view"
)

type screen int

const (
	screenStarting screen = iota
	screenLogin
	screenURL
	screenList
)

// Renderer is the view.Renderer handed to the controller. The controller may
// call it from any goroutine, including the save queue worker; the model
// reads a snapshot whenever Changed fires.
//
// It is also an io.Writer so login instructions printed by the session
// provider end up on screen instead of corrupting the terminal.
type Renderer struct {
	mu     sync.Mutex
	screen screen
	tasks  []tasklist.Task
	alert  string
	notice []string

	changed chan struct{}
}

var _ view.Renderer = (*Renderer)(nil)

// NewRenderer creates a renderer showing the start screen.
func NewRenderer() *Renderer {
	return &Renderer{changed: make(chan struct{}, 1)}
}

// ShowLogin implements view.Renderer.
func (r *Renderer) ShowLogin() {
	r.update(func() {
		r.screen = screenLogin
		r.tasks = nil
	})
}

// ShowConfig implements view.Renderer.
func (r *Renderer) ShowConfig() {
	r.update(func() {
		r.screen = screenURL
		r.tasks = nil
		r.notice = nil
	})
}

// Render implements view.Renderer.
func (r *Renderer) Render(tasks []tasklist.Task) {
	r.update(func() {
		r.screen = screenList
		r.tasks = append([]tasklist.Task(nil), tasks...)
	})
}

// Alert implements view.Renderer.
func (r *Renderer) Alert(msg string) {
	r.update(func() { r.alert = msg })
}

// Write collects provider output as a notice, one entry per line.
func (r *Renderer) Write(p []byte) (int, error) {
	r.update(func() {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			if line != "" {
				r.notice = append(r.notice, line)
			}
		}
	})
	return len(p), nil
}

// Changed fires, coalesced, after any update.
func (r *Renderer) Changed() <-chan struct{} {
	return r.changed
}

func (r *Renderer) update(fn func()) {
	r.mu.Lock()
	fn()
	r.mu.Unlock()

	select {
	case r.changed <- struct{}{}:
	default:
	}
}

type snapshot struct {
	screen screen
	tasks  []tasklist.Task
	alert  string
	notice []string
}

func (r *Renderer) snapshot() snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot{
		screen: r.screen,
		tasks:  append([]tasklist.Task(nil), r.tasks...),
		alert:  r.alert,
		notice: append([]string(nil), r.notice...),
	}
}

func (r *Renderer) clearAlert() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alert = ""
}
