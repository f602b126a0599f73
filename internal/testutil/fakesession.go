// Package testutil provides testing utilities.
package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	"solidtodo/internal/session"
)

// Request is a request observed by FakeSession.
type Request struct {
	Method      string
	URL         string
	ContentType string
	Body        string
}

// FakeSession is an in-memory session.Provider backed by a map of documents.
// GET returns the stored document or 404; PUT replaces it.
type FakeSession struct {
	mu       sync.Mutex
	loggedIn bool
	docs     map[string][]byte
	statuses map[string]int // url -> forced GET status
	requests []Request

	// CompleteLogin makes Login succeed and leave the session logged in,
	// as if the user finished the redirect in the browser.
	CompleteLogin bool

	// PutStatus forces the status of every PUT when non-zero.
	PutStatus int

	// BeforePut, if set, runs before a PUT is applied.
	BeforePut func(url string)

	// Error injection for testing
	RestoreErr error
	LoginErr   error
	FetchErr   error
	LogoutErr  error

	// Recorded calls
	LoginCalls   []session.LoginOptions
	RestoreCalls []session.RedirectOptions
	LogoutCalls  int
}

var _ session.Provider = (*FakeSession)(nil)

// NewFakeSession creates a FakeSession, optionally already logged in.
func NewFakeSession(loggedIn bool) *FakeSession {
	return &FakeSession{
		loggedIn: loggedIn,
		docs:     make(map[string][]byte),
		statuses: make(map[string]int),
	}
}

// SetDocument stores a raw document body at url.
func (f *FakeSession) SetDocument(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[url] = []byte(body)
}

// Document returns the raw document stored at url, or "" if none.
func (f *FakeSession) Document(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.docs[url])
}

// SetStatus forces the status returned for GET requests on url.
func (f *FakeSession) SetStatus(url string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[url] = status
}

// Requests returns the requests seen so far.
func (f *FakeSession) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Puts returns the bodies of all PUT requests in order.
func (f *FakeSession) Puts() []string {
	var out []string
	for _, r := range f.Requests() {
		if r.Method == http.MethodPut {
			out = append(out, r.Body)
		}
	}
	return out
}

// HandleIncomingRedirect implements session.Provider.
func (f *FakeSession) HandleIncomingRedirect(ctx context.Context, opts session.RedirectOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RestoreCalls = append(f.RestoreCalls, opts)
	if f.RestoreErr != nil {
		f.loggedIn = false
		return f.RestoreErr
	}
	return nil
}

// IsLoggedIn implements session.Provider.
func (f *FakeSession) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

// Login implements session.Provider.
func (f *FakeSession) Login(ctx context.Context, opts session.LoginOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoginCalls = append(f.LoginCalls, opts)
	if f.LoginErr != nil {
		return f.LoginErr
	}
	if f.CompleteLogin {
		f.loggedIn = true
	}
	return nil
}

// Logout implements session.Provider.
func (f *FakeSession) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogoutCalls++
	if f.LogoutErr != nil {
		return f.LogoutErr
	}
	f.loggedIn = false
	return nil
}

// Fetch implements session.Fetcher.
func (f *FakeSession) Fetch(ctx context.Context, url string, opts *session.FetchOptions) (*http.Response, error) {
	req, err := session.NewRequest(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	var body []byte
	if req.Body != nil {
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, Request{
		Method:      req.Method,
		URL:         url,
		ContentType: req.Header.Get("Content-Type"),
		Body:        string(body),
	})
	if f.FetchErr != nil {
		err := f.FetchErr
		f.mu.Unlock()
		return nil, err
	}
	if !f.loggedIn {
		f.mu.Unlock()
		return nil, session.ErrNotLoggedIn
	}
	beforePut := f.BeforePut
	f.mu.Unlock()

	switch req.Method {
	case http.MethodGet:
		f.mu.Lock()
		defer f.mu.Unlock()
		if status, ok := f.statuses[url]; ok {
			return response(status, nil), nil
		}
		doc, ok := f.docs[url]
		if !ok {
			return response(http.StatusNotFound, []byte("Not Found")), nil
		}
		return response(http.StatusOK, doc), nil

	case http.MethodPut:
		if beforePut != nil {
			beforePut(url)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.PutStatus != 0 {
			return response(f.PutStatus, nil), nil
		}
		_, existed := f.docs[url]
		f.docs[url] = body
		if existed {
			return response(http.StatusNoContent, nil), nil
		}
		return response(http.StatusCreated, nil), nil

	default:
		return response(http.StatusMethodNotAllowed, nil), nil
	}
}

func response(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
