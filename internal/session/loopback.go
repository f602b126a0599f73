package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

const (
	// CallbackTimeout bounds how long we wait for the browser redirect.
	CallbackTimeout = 5 * time.Minute

	// TokenExchangeTimeout bounds the code-for-token exchange.
	TokenExchangeTimeout = 30 * time.Second

	// Starting port for the loopback callback server
	callbackStartPort = 8085

	// Max port attempts
	callbackMaxPortAttempts = 5

	callbackPath = "/callback"
)

// LoopbackOptions configures AuthorizeLoopback.
type LoopbackOptions struct {
	// Out receives the authorization URL the user has to open.
	Out io.Writer

	// Timeout overrides CallbackTimeout when non-zero.
	Timeout time.Duration

	// AuthParams are extra parameters for the authorization URL.
	AuthParams []oauth2.AuthCodeOption

	// Listener is an already bound callback listener matching
	// cfg.RedirectURL. It is closed when AuthorizeLoopback returns.
	Listener net.Listener
}

// AuthorizeLoopback runs the authorization-code flow with PKCE, receiving the
// redirect on a local HTTP listener.
//
// Unless opts.Listener is set, a listener is bound here: the first free port
// from the one in cfg.RedirectURL (8085 when empty, any port for 0), and
// cfg.RedirectURL is set to the address actually bound.
func AuthorizeLoopback(ctx context.Context, cfg *oauth2.Config, opts LoopbackOptions) (*oauth2.Token, error) {
	listener := opts.Listener
	if listener == nil {
		var redirectURL string
		var err error
		listener, redirectURL, err = listenRedirect(cfg.RedirectURL)
		if err != nil {
			return nil, err
		}
		cfg.RedirectURL = redirectURL
	}
	defer listener.Close()

	verifier := oauth2.GenerateVerifier()
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	authParams := append([]oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	}, opts.AuthParams...)
	authURL := cfg.AuthCodeURL(state, authParams...)

	if opts.Out != nil {
		fmt.Fprintln(opts.Out, "Open this URL in your browser:")
		fmt.Fprintln(opts.Out, authURL)
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Authentication failed", http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("authorization denied: %s", e))
			return
		}
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("state mismatch in callback"))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("no code in callback"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Authentication successful</h1><p>You may close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errCh, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = CallbackTimeout
	}

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("login callback timed out")
	case <-ctx.Done():
		return nil, fmt.Errorf("login cancelled: %w", ctx.Err())
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, TokenExchangeTimeout)
	defer cancel()

	token, err := cfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchange code for token: %w", err)
	}
	return token, nil
}

// listenRedirect binds the callback listener for redirectURL and returns the
// redirect URL rewritten to the bound port. The port in redirectURL is only
// where the search starts; a busy port moves on to the next one.
func listenRedirect(redirectURL string) (net.Listener, string, error) {
	if redirectURL == "" {
		redirectURL = fmt.Sprintf("http://localhost:%d%s", callbackStartPort, callbackPath)
	}
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Path != callbackPath {
		return nil, "", fmt.Errorf("redirect URL path must be %s: %s", callbackPath, redirectURL)
	}

	port := callbackStartPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 0 || port > 65535 {
			return nil, "", fmt.Errorf("invalid redirect URL port: %s", redirectURL)
		}
	}

	listener, err := listenFrom(u.Hostname(), port)
	if err != nil {
		return nil, "", err
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(listener.Addr().(*net.TCPAddr).Port))
	return listener, u.String(), nil
}

// listenFrom binds host:port or, when taken, one of the next
// callbackMaxPortAttempts-1 ports. Port 0 lets the system choose.
func listenFrom(host string, port int) (net.Listener, error) {
	if port == 0 {
		listener, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return nil, fmt.Errorf("could not bind to local port for login callback: %w", err)
		}
		return listener, nil
	}

	var lastErr error
	for i := 0; i < callbackMaxPortAttempts && port+i <= 65535; i++ {
		listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port+i)))
		if err == nil {
			return listener, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("could not bind to local port for login callback: %w", lastErr)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
