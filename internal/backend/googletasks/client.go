// Package googletasks reads open tasks from Google Tasks for import into a
// task document.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"solidtodo/internal/config"
	"solidtodo/internal/session"
)

const (
	// DefaultListID is the special ID for the default list.
	DefaultListID = "@default"

	// PageSize is the number of tasks fetched per request.
	PageSize = 100

	// APITimeout is the timeout for each API call.
	APITimeout = 5 * time.Second

	tasksScope = "https://www.googleapis.com/auth/tasks.readonly"
)

// ErrNoCredentials is returned when google_client.json is missing.
var ErrNoCredentials = errors.New("google_client.json not found")

// ErrNotAuthorized is returned when there is no usable Google token.
var ErrNotAuthorized = errors.New("google tasks not authorized")

// TaskList is a Google task list.
type TaskList struct {
	ID        string
	Title     string
	IsDefault bool
}

// Client reads task lists and open tasks.
type Client struct {
	svc *tasks.Service
}

// OAuthConfig reads the client credentials from the config directory.
func OAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientJSON, err := os.ReadFile(cfg.GoogleClientPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoCredentials, cfg.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read google_client.json: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, tasksScope)
	if err != nil {
		return nil, fmt.Errorf("invalid google_client.json: %w", err)
	}
	return oauthConfig, nil
}

// Authorize runs the browser login for Google and stores the token. The
// login URL is written to out.
func Authorize(ctx context.Context, cfg *config.Config, out io.Writer) error {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return err
	}
	// The redirect URL from google_client.json is ignored; the loopback
	// listener picks its own port.
	oauthConfig.RedirectURL = ""

	token, err := session.AuthorizeLoopback(ctx, oauthConfig, session.LoopbackOptions{
		Out:        out,
		AuthParams: []oauth2.AuthCodeOption{oauth2.AccessTypeOffline},
	})
	if err != nil {
		return fmt.Errorf("google login: %w", err)
	}
	if err := cfg.EnsureDir(); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return session.SaveToken(cfg.GoogleTokenPath(), token)
}

// New creates a client from google_client.json and google_token.json.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	oauthConfig, err := OAuthConfig(cfg)
	if err != nil {
		return nil, err
	}

	token, err := session.LoadToken(cfg.GoogleTokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("read google_token.json: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token))
	return NewWithHTTPClient(ctx, httpClient)
}

// NewWithHTTPClient creates a client on a custom HTTP client. Extra options
// such as option.WithEndpoint are passed to the API.
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create tasks service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListLists returns all task lists in API order, the default one marked.
func (c *Client) ListLists(ctx context.Context) ([]TaskList, error) {
	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	defaultList, err := c.svc.Tasklists.Get(DefaultListID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	var result []TaskList
	err = c.svc.Tasklists.List().MaxResults(100).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, list := range resp.Items {
			result = append(result, TaskList{
				ID:        list.Id,
				Title:     list.Title,
				IsDefault: list.Id == defaultList.Id,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

// ResolveList finds a list by name (case-insensitive, trimmed). An empty
// name selects the default list.
func (c *Client) ResolveList(ctx context.Context, name string) (TaskList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TaskList{ID: DefaultListID, IsDefault: true}, nil
	}

	lists, err := c.ListLists(ctx)
	if err != nil {
		return TaskList{}, err
	}

	var matches []TaskList
	for _, list := range lists {
		if strings.EqualFold(strings.TrimSpace(list.Title), name) {
			matches = append(matches, list)
		}
	}

	switch len(matches) {
	case 0:
		return TaskList{}, fmt.Errorf("list not found: %s", name)
	case 1:
		return matches[0], nil
	default:
		return TaskList{}, fmt.Errorf("ambiguous list name: %s", name)
	}
}

// OpenTasks returns the titles of all open tasks in the named list, or the
// default list when name is empty, in API order. Untitled tasks are
// skipped.
func (c *Client) OpenTasks(ctx context.Context, name string) ([]string, error) {
	list, err := c.ResolveList(ctx, name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	var titles []string
	err = c.svc.Tasks.List(list.ID).
		MaxResults(PageSize).
		ShowCompleted(false).
		ShowDeleted(false).
		ShowHidden(false).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, task := range resp.Items {
				if title := strings.TrimSpace(task.Title); title != "" {
					titles = append(titles, title)
				}
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(err)
	}
	return titles, nil
}

// wrapError maps API errors to user-facing messages.
func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("request timed out")
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: token expired or revoked (run: solidtodo import-gtasks --login)", ErrNotAuthorized)
		case http.StatusNotFound:
			return errors.New("not found")
		}
	}
	return err
}
