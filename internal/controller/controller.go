// Package controller coordinates login, document load and persistence of
// every edit. It owns the task list and the document URL.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"solidtodo/internal/docstore"
	"solidtodo/internal/session"
	"solidtodo/internal/tasklist"
	"solidtodo/internal/view"
)

// State is the controller's position in the login/load flow.
type State int

const (
	// Starting is the state before Start has run.
	Starting State = iota
	Unauthenticated
	Authenticating
	ConfigPending
	Loaded
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case ConfigPending:
		return "config-pending"
	case Loaded:
		return "loaded"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

var (
	// ErrEmptyURL is returned by Load when the URL is blank.
	ErrEmptyURL = errors.New("document URL required")

	// ErrNotAuthenticated is returned for commands that need a session.
	ErrNotAuthenticated = errors.New("not logged in")

	// ErrNoDocument is returned for edits before a document was loaded.
	ErrNoDocument = errors.New("no document loaded")
)

// EmptyURLPrompt is shown when Load is given a blank URL.
const EmptyURLPrompt = "Enter the full URL for tasks.json"

// Store loads and saves the task document. Load always returns a usable
// list; a non-nil error means the stored document could not be read and
// the list stands in for it.
type Store interface {
	Load(ctx context.Context, url string) ([]tasklist.Task, error)
	docstore.Saver
}

// Options holds the login parameters handed to the session provider.
type Options struct {
	Issuer      string
	RedirectURL string
	ClientName  string
	ClientID    string

	// NewID overrides task id generation.
	NewID tasklist.IDFunc

	Logger *log.Logger
}

// Controller is the application state: one session, one document URL and
// one task list. It is safe for use from multiple goroutines, though all
// commands are applied one at a time.
type Controller struct {
	provider session.Provider
	store    Store
	renderer view.Renderer
	opts     Options
	logger   *log.Logger

	mu      sync.Mutex
	state   State
	fileURL string
	loadErr error
	list    *tasklist.List

	queue       *docstore.SaveQueue
	cancelSaves context.CancelFunc

	errMu   sync.Mutex
	saveErr error
	failed  int
}

// New creates a controller in the Starting state. Saves run on a background
// queue until Close.
func New(provider session.Provider, store Store, renderer view.Renderer, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	c := &Controller{
		provider: provider,
		store:    store,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		list:     tasklist.New(opts.NewID),
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.queue = docstore.NewSaveQueue(ctx, store, c.saveFailed)
	c.cancelSaves = cancel
	return c
}

// Start restores a previous session and moves to Unauthenticated or
// ConfigPending. A restore error is returned but still leaves the
// controller in Unauthenticated.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start(ctx)
}

func (c *Controller) start(ctx context.Context) error {
	err := c.provider.HandleIncomingRedirect(ctx, session.RedirectOptions{RestorePreviousSession: true})
	if err != nil {
		c.logger.Warn("session restore failed", "err", err)
		err = fmt.Errorf("restore session: %w", err)
	}

	if c.provider.IsLoggedIn() {
		c.state = ConfigPending
		c.renderer.ShowConfig()
	} else {
		c.state = Unauthenticated
		c.renderer.ShowLogin()
	}
	c.logger.Debug("started", "state", c.state)
	return err
}

// Dispatch applies a command.
func (c *Controller) Dispatch(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Debug("dispatch", "command", cmd.Name(), "state", c.state)

	switch cmd := cmd.(type) {
	case Login:
		return c.login(ctx)
	case Load:
		return c.load(ctx, cmd.URL)
	case Add:
		return c.edit(func() bool {
			_, ok := c.list.Add(cmd.Description)
			return ok
		})
	case Toggle:
		return c.edit(func() bool { return c.list.Toggle(cmd.ID) })
	case Delete:
		return c.edit(func() bool { return c.list.Remove(cmd.ID) })
	default:
		return fmt.Errorf("unknown command: %s", cmd.Name())
	}
}

func (c *Controller) login(ctx context.Context) error {
	if c.state != Unauthenticated && c.state != Starting {
		return nil
	}

	c.state = Authenticating
	err := c.provider.Login(ctx, session.LoginOptions{
		OIDCIssuer:  c.opts.Issuer,
		RedirectURL: c.opts.RedirectURL,
		ClientName:  c.opts.ClientName,
		ClientID:    c.opts.ClientID,
	})
	if err != nil {
		c.logger.Warn("login failed", "issuer", c.opts.Issuer, "err", err)
		c.state = Unauthenticated
		c.renderer.ShowLogin()
		return fmt.Errorf("login: %w", err)
	}

	// Resume as a fresh start would after the redirect.
	return c.start(ctx)
}

func (c *Controller) load(ctx context.Context, url string) error {
	switch c.state {
	case ConfigPending, Loaded:
	default:
		return ErrNotAuthenticated
	}

	url = strings.TrimSpace(url)
	if url == "" {
		c.renderer.Alert(EmptyURLPrompt)
		return ErrEmptyURL
	}

	// Let our own pending writes land before reading back.
	if err := c.queue.Flush(ctx); err != nil {
		return err
	}

	tasks, err := c.store.Load(ctx, url)
	c.list.ReplaceAll(tasks)
	c.fileURL = url
	c.loadErr = err
	c.state = Loaded
	c.renderer.Render(c.list.Tasks())
	return nil
}

// edit runs a mutation; if it changed the list, the new list is queued for
// saving and rendered.
func (c *Controller) edit(mutate func() bool) error {
	switch c.state {
	case Loaded:
	case ConfigPending:
		return ErrNoDocument
	default:
		return ErrNotAuthenticated
	}

	if !mutate() {
		return nil
	}

	tasks := c.list.Tasks()
	if err := c.queue.Enqueue(c.fileURL, tasks); err != nil {
		c.saveFailed(err)
	}
	c.renderer.Render(tasks)
	return nil
}

// saveFailed runs on the queue worker. It must not take c.mu: Load holds it
// while flushing the queue.
func (c *Controller) saveFailed(err error) {
	c.logger.Error("save failed", "err", err)

	c.errMu.Lock()
	c.saveErr = err
	c.failed++
	c.errMu.Unlock()

	c.renderer.Alert("save failed: " + err.Error())
}

// SaveFailures returns the number of failed saves so far and the most
// recent failure.
func (c *Controller) SaveFailures() (int, error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.failed, c.saveErr
}

// Flush waits for all queued saves to settle.
func (c *Controller) Flush(ctx context.Context) error {
	return c.queue.Flush(ctx)
}

// Reset forgets the document and the tasks and returns to the state right
// after Start. Queued saves still complete.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.list.Reset()
	c.fileURL = ""
	c.loadErr = nil
	if c.provider.IsLoggedIn() {
		c.state = ConfigPending
		c.renderer.ShowConfig()
	} else {
		c.state = Unauthenticated
		c.renderer.ShowLogin()
	}
}

// Close flushes pending saves and stops the save queue. If ctx ends first,
// the save in flight is cancelled and the rest are dropped.
func (c *Controller) Close(ctx context.Context) error {
	err := c.queue.Flush(ctx)
	if err != nil {
		c.cancelSaves()
	}
	c.queue.Close()
	c.cancelSaves()
	return err
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FileURL returns the loaded document URL, or "".
func (c *Controller) FileURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileURL
}

// LoadErr reports why the last load fell back to an empty list, or nil when
// the list reflects the stored document.
func (c *Controller) LoadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Tasks returns a snapshot of the task list.
func (c *Controller) Tasks() []tasklist.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Tasks()
}

// Lookup resolves a task reference: a task id or, when no id matches, a
// 1-based row number. Ids win so numeric ids keep naming their own task.
func (c *Controller) Lookup(ref string) (tasklist.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ref = strings.TrimSpace(ref)
	if task, ok := c.list.Get(ref); ok {
		return task, true
	}
	num, err := strconv.Atoi(ref)
	if err != nil {
		return tasklist.Task{}, false
	}
	return c.list.At(num)
}
