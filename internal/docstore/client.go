// Package docstore reads and writes the task document on the remote store
// through the session's authenticated fetch.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"solidtodo/internal/session"
	"solidtodo/internal/tasklist"
)

// ContentType is sent with every save.
const ContentType = "application/json"

// maxDocumentSize caps how much of a response body is read on load.
const maxDocumentSize = 8 << 20

// StatusError reports an unexpected HTTP status from the store.
type StatusError struct {
	Method string
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
}

// ErrDegraded is returned by Load together with an empty list when the
// document exists but could not be read.
var ErrDegraded = errors.New("document could not be loaded")

// errNotFound marks a 404 on load, which means "no document yet".
var errNotFound = errors.New("document not found")

// Client performs authenticated GET/PUT of one JSON resource. It never
// keeps a copy of the tasks.
type Client struct {
	fetcher session.Fetcher
	logger  *log.Logger
}

// New creates a Client. A nil logger discards log output.
func New(fetcher session.Fetcher, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Client{fetcher: fetcher, logger: logger}
}

// Load fetches the document at url. The returned list is always usable.
//
// A missing document (404) yields an empty list and no error. Any other
// failure, whether transport, status, malformed JSON or a document that does
// not match the task schema, is logged and also yields an empty list, with
// an error wrapping ErrDegraded. Saving that list would replace the document
// the store still holds.
func (c *Client) Load(ctx context.Context, url string) ([]tasklist.Task, error) {
	tasks, err := c.load(ctx, url)
	if errors.Is(err, errNotFound) {
		c.logger.Debug("no document yet, starting empty", "url", url)
		return []tasklist.Task{}, nil
	}
	if err != nil {
		c.logger.Warn("load failed, starting with an empty list", "url", url, "err", err)
		return []tasklist.Task{}, fmt.Errorf("%w: %w", ErrDegraded, err)
	}
	c.logger.Debug("document loaded", "url", url, "tasks", len(tasks))
	return tasks, nil
}

func (c *Client) load(ctx context.Context, url string) ([]tasklist.Task, error) {
	resp, err := c.fetcher.Fetch(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: http.MethodGet, URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if err := validateDocument(data); err != nil {
		return nil, err
	}
	return tasklist.Decode(data)
}

// Save overwrites the document at url with tasks.
//
// There is no conflict detection: the PUT replaces whatever is stored.
// Transport errors and non-2xx statuses are returned; nothing is retried.
func (c *Client) Save(ctx context.Context, url string, tasks []tasklist.Task) error {
	body, err := tasklist.Encode(tasks)
	if err != nil {
		return err
	}

	resp, err := c.fetcher.Fetch(ctx, url, &session.FetchOptions{
		Method: http.MethodPut,
		Header: http.Header{"Content-Type": []string{ContentType}},
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("PUT %s: %w", url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: http.MethodPut, URL: url, Status: resp.StatusCode}
	}
	c.logger.Debug("document saved", "url", url, "tasks", len(tasks))
	return nil
}

// validateDocument checks data against the task document schema.
func validateDocument(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("malformed document: %w", err)
	}
	if doc == nil {
		return nil
	}
	if err := documentSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}
	return nil
}
