package testutil

import (
	"sync"

	"solidtodo/internal/tasklist"
)

// RecordingRenderer implements view.Renderer and records every call.
type RecordingRenderer struct {
	mu      sync.Mutex
	events  []string
	renders [][]tasklist.Task
	alerts  []string
}

// ShowLogin implements view.Renderer.
func (r *RecordingRenderer) ShowLogin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "login")
}

// ShowConfig implements view.Renderer.
func (r *RecordingRenderer) ShowConfig() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "config")
}

// Render implements view.Renderer.
func (r *RecordingRenderer) Render(tasks []tasklist.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "render")
	r.renders = append(r.renders, append([]tasklist.Task(nil), tasks...))
}

// Alert implements view.Renderer.
func (r *RecordingRenderer) Alert(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "alert")
	r.alerts = append(r.alerts, msg)
}

// Events returns the call names in order: login, config, render, alert.
func (r *RecordingRenderer) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Last returns the most recently rendered tasks and whether any render
// happened.
func (r *RecordingRenderer) Last() ([]tasklist.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return nil, false
	}
	return r.renders[len(r.renders)-1], true
}

// Alerts returns all alert messages.
func (r *RecordingRenderer) Alerts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.alerts...)
}
