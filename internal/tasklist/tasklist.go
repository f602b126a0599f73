// Package tasklist holds the in-memory, ordered task collection that the
// controller renders and persists.
package tasklist

import (
	"strings"

	"github.com/google/uuid"
)

// Task is a single to-do entry as stored in the remote document.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// IDFunc generates task ids.
type IDFunc func() string

// NewID returns a time-ordered UUIDv7 string. uuid.NewV7 keeps a monotonic
// sequence, so ids generated within the same millisecond still differ.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// List is the ordered task collection. Insertion order is render order.
// The zero value is not usable; construct with New.
type List struct {
	tasks []Task
	newID IDFunc
}

// New creates an empty list. If newID is nil, NewID is used.
func New(newID IDFunc) *List {
	if newID == nil {
		newID = NewID
	}
	return &List{newID: newID}
}

// ReplaceAll replaces the whole collection with a copy of tasks.
func (l *List) ReplaceAll(tasks []Task) {
	l.tasks = append([]Task(nil), tasks...)
}

// Reset empties the list.
func (l *List) Reset() {
	l.tasks = nil
}

// Add appends a new open task. Descriptions that are empty after trimming
// are rejected and the list is left unchanged.
func (l *List) Add(description string) (Task, bool) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Task{}, false
	}

	task := Task{
		ID:          l.newID(),
		Description: description,
		Done:        false,
	}
	l.tasks = append(l.tasks, task)
	return task, true
}

// Toggle flips Done on the task with the given id.
// Returns false if no such task exists.
func (l *List) Toggle(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.tasks[i].Done = !l.tasks[i].Done
	return true
}

// Remove deletes the task with the given id.
// Returns false if no such task exists.
func (l *List) Remove(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
	return true
}

// Get returns the task with the given id.
func (l *List) Get(id string) (Task, bool) {
	i := l.index(id)
	if i < 0 {
		return Task{}, false
	}
	return l.tasks[i], true
}

// At returns the task at the 1-based position num.
func (l *List) At(num int) (Task, bool) {
	if num < 1 || num > len(l.tasks) {
		return Task{}, false
	}
	return l.tasks[num-1], true
}

// Len returns the number of tasks.
func (l *List) Len() int {
	return len(l.tasks)
}

// Tasks returns a copy of the tasks in order.
func (l *List) Tasks() []Task {
	out := make([]Task, len(l.tasks))
	copy(out, l.tasks)
	return out
}

func (l *List) index(id string) int {
	for i, t := range l.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
