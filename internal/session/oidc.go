package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultScopes are requested when OIDCOptions.Scopes is empty.
var DefaultScopes = []string{"openid", "offline_access", "webid"}

// OIDCOptions configures an OIDCProvider.
type OIDCOptions struct {
	// SessionPath is where the session is persisted between runs.
	SessionPath string

	// ClientSecret is used with a pre-registered confidential client.
	ClientSecret string

	Scopes []string

	// Out receives the login URL for the user to open.
	Out io.Writer

	// HTTPClient is the transport for discovery, registration, token
	// requests and, wrapped with credentials, for Fetch. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	Logger *log.Logger
}

// OIDCProvider implements Provider with an OAuth2 authorization-code flow
// against an OpenID issuer.
type OIDCProvider struct {
	opts OIDCOptions

	mu      sync.Mutex
	session *storedSession
	client  *http.Client
}

// NewOIDCProvider creates a provider. No network activity happens until
// HandleIncomingRedirect or Login is called.
func NewOIDCProvider(opts OIDCOptions) *OIDCProvider {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultScopes
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &OIDCProvider{opts: opts}
}

// HandleIncomingRedirect restores the stored session when asked to. The
// loopback login completes the redirect inside Login, so there is never a
// pending redirect left to finish here.
func (p *OIDCProvider) HandleIncomingRedirect(ctx context.Context, opts RedirectOptions) error {
	if !opts.RestorePreviousSession {
		return nil
	}

	stored, err := loadSession(p.opts.SessionPath)
	if errors.Is(err, os.ErrNotExist) {
		p.opts.Logger.Debug("no stored session", "path", p.opts.SessionPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	// Refresh now if needed so a dead refresh token means "logged out"
	// instead of failing on the first fetch.
	cfg := stored.oauthConfig()
	token, err := cfg.TokenSource(p.oauthContext(ctx), stored.Token).Token()
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if token.AccessToken != stored.Token.AccessToken {
		stored.Token = token
		if err := saveSession(p.opts.SessionPath, stored); err != nil {
			p.opts.Logger.Warn("could not persist refreshed token", "err", err)
		}
	}

	p.activate(stored)
	p.opts.Logger.Debug("session restored", "issuer", stored.Issuer)
	return nil
}

// IsLoggedIn implements Provider.
func (p *OIDCProvider) IsLoggedIn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil
}

// Login discovers the issuer, binds the callback listener, registers a
// client if no ClientID is given and runs the loopback authorization flow.
// The returned ID token is verified. On success the session is persisted
// and active.
func (p *OIDCProvider) Login(ctx context.Context, opts LoginOptions) error {
	if opts.OIDCIssuer == "" {
		return fmt.Errorf("oidc issuer required")
	}
	ctx = p.oauthContext(ctx)

	provider, registrationEndpoint, err := discover(ctx, opts.OIDCIssuer)
	if err != nil {
		return err
	}

	// Bind first: the registered redirect URI has to name the port we
	// actually listen on.
	listener, redirectURL, err := listenRedirect(opts.RedirectURL)
	if err != nil {
		return err
	}
	defer listener.Close()

	cfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: p.opts.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       p.opts.Scopes,
		Endpoint:     provider.Endpoint(),
	}

	if cfg.ClientID == "" {
		if registrationEndpoint == "" {
			return fmt.Errorf("issuer does not support dynamic registration; set client_id")
		}
		if err := p.registerClient(ctx, cfg, registrationEndpoint, opts.ClientName); err != nil {
			return err
		}
	}
	if cfg.ClientSecret == "" {
		cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}

	p.opts.Logger.Debug("starting login", "issuer", opts.OIDCIssuer, "client_id", cfg.ClientID, "redirect", cfg.RedirectURL)

	p.mu.Lock()
	out := p.opts.Out
	p.mu.Unlock()

	token, err := AuthorizeLoopback(ctx, cfg, LoopbackOptions{Out: out, Listener: listener})
	if err != nil {
		return err
	}
	if err := verifyIDToken(ctx, provider, cfg, token); err != nil {
		return err
	}

	stored := &storedSession{
		Issuer:       opts.OIDCIssuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AuthURL:      cfg.Endpoint.AuthURL,
		TokenURL:     cfg.Endpoint.TokenURL,
		Scopes:       cfg.Scopes,
		Token:        token,
	}
	if err := saveSession(p.opts.SessionPath, stored); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	p.activate(stored)
	return nil
}

// registerClient registers a public client for cfg.RedirectURL.
func (p *OIDCProvider) registerClient(ctx context.Context, cfg *oauth2.Config, endpoint, clientName string) error {
	reg, err := register(ctx, p.opts.HTTPClient, endpoint, clientName, cfg.RedirectURL)
	if err != nil {
		return err
	}
	cfg.ClientID = reg.ClientID
	if reg.ClientSecret != "" {
		cfg.ClientSecret = reg.ClientSecret
	}
	return nil
}

// SetOutput changes where the login URL is written.
func (p *OIDCProvider) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.Out = w
}

// Logout implements Provider.
func (p *OIDCProvider) Logout() error {
	p.mu.Lock()
	p.session = nil
	p.client = nil
	p.mu.Unlock()

	err := os.Remove(p.opts.SessionPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Fetch implements Fetcher. The request carries the session's bearer token,
// refreshed as needed.
func (p *OIDCProvider) Fetch(ctx context.Context, url string, opts *FetchOptions) (*http.Response, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return nil, ErrNotLoggedIn
	}

	req, err := NewRequest(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

// Issuer returns the issuer of the active session, or "".
func (p *OIDCProvider) Issuer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return ""
	}
	return p.session.Issuer
}

// HasStoredSession reports whether a session file exists.
func (p *OIDCProvider) HasStoredSession() bool {
	_, err := os.Stat(p.opts.SessionPath)
	return err == nil
}

func (p *OIDCProvider) activate(stored *storedSession) {
	// The token source outlives the calling context.
	ts := stored.oauthConfig().TokenSource(p.oauthContext(context.Background()), stored.Token)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = stored
	p.client = oauth2.NewClient(p.oauthContext(context.Background()), ts)
}

// oauthContext makes oauth2 and go-oidc use the configured HTTP client.
func (p *OIDCProvider) oauthContext(ctx context.Context) context.Context {
	ctx = oidc.ClientContext(ctx, p.opts.HTTPClient)
	return context.WithValue(ctx, oauth2.HTTPClient, p.opts.HTTPClient)
}
