// Package session defines the capability surface of the identity provider
// the app authenticates against, plus an OIDC implementation of it.
//
// The controller never speaks OAuth2 itself. It asks the Provider to restore
// a previous session, to start a login, and to perform authenticated fetches.
package session

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// ErrNotLoggedIn is returned by Fetch when no authenticated session exists.
var ErrNotLoggedIn = errors.New("not logged in")

// Provider is the session capability consumed by the controller.
type Provider interface {
	Fetcher

	// HandleIncomingRedirect completes any pending redirect-based login and,
	// if opts.RestorePreviousSession is set, restores a stored session.
	// Returns once the session state is settled.
	HandleIncomingRedirect(ctx context.Context, opts RedirectOptions) error

	// IsLoggedIn reports whether an authenticated session is active.
	IsLoggedIn() bool

	// Login runs the redirect-based login against the issuer in opts.
	Login(ctx context.Context, opts LoginOptions) error

	// Logout forgets the active and stored session.
	Logout() error
}

// Fetcher performs HTTP requests carrying the session's credentials.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts *FetchOptions) (*http.Response, error)
}

// RedirectOptions controls HandleIncomingRedirect.
type RedirectOptions struct {
	RestorePreviousSession bool
}

// LoginOptions describes the login to start.
type LoginOptions struct {
	OIDCIssuer  string
	RedirectURL string
	ClientName  string

	// ClientID is optional. When empty the provider registers a client
	// dynamically using ClientName.
	ClientID string
}

// FetchOptions mirrors the options of a browser fetch call.
// A nil *FetchOptions means a plain GET.
type FetchOptions struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// NewRequest builds the *http.Request for a Fetch call.
func NewRequest(ctx context.Context, url string, opts *FetchOptions) (*http.Request, error) {
	method := http.MethodGet
	var body io.Reader
	var header http.Header
	if opts != nil {
		if opts.Method != "" {
			method = opts.Method
		}
		body = opts.Body
		header = opts.Header
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}
