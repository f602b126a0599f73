package session

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/oauth2"
)

const testKeyID = "test-key"

// fakeIssuer is a minimal OpenID provider plus a protected resource.
type fakeIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	// advertisedIssuer and audience, when set, replace the correct values
	// in the discovery document and the ID token.
	advertisedIssuer string
	audience         string

	mu           sync.Mutex
	clientNames  []string
	redirectURIs []string
	exchanges    int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		issuer := f.srv.URL
		if f.advertisedIssuer != "" {
			issuer = f.advertisedIssuer
		}
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                issuer,
			"authorization_endpoint":                f.srv.URL + "/authorize",
			"token_endpoint":                        f.srv.URL + "/token",
			"registration_endpoint":                 f.srv.URL + "/register",
			"jwks_uri":                              f.srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &f.key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}}})
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		var req registrationRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.clientNames = append(f.clientNames, req.ClientName)
		f.redirectURIs = append(f.redirectURIs, req.RedirectURIs...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"client_id": "dyn-client"})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "good-code" || r.Form.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.exchanges++
		f.mu.Unlock()

		audience := r.Form.Get("client_id")
		if f.audience != "" {
			audience = f.audience
		}
		idToken, err := f.signIDToken(audience)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "Bearer",
			"refresh_token": "rt-1",
			"expires_in":    3600,
			"id_token":      idToken,
		})
	})
	mux.HandleFunc("/doc", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("[]"))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeIssuer) signIDToken(audience string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: f.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", testKeyID),
	)
	if err != nil {
		return "", err
	}
	now := time.Now()
	payload, err := json.Marshal(map[string]any{
		"iss":   f.srv.URL,
		"sub":   "https://pod.example/profile/card#me",
		"aud":   audience,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"webid": "https://pod.example/profile/card#me",
	})
	if err != nil {
		return "", err
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return obj.CompactSerialize()
}

// browser follows the printed authorization URL by hitting the redirect
// URI, as a user's browser would after consent.
type browser struct {
	code  string
	state string // overrides the echoed state when set

	redirects []string
}

func (b *browser) Write(p []byte) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(p)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "http") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil {
			continue
		}
		q := u.Query()
		state := q.Get("state")
		if b.state != "" {
			state = b.state
		}
		b.redirects = append(b.redirects, q.Get("redirect_uri"))
		target := q.Get("redirect_uri") + "?code=" + url.QueryEscape(b.code) + "&state=" + url.QueryEscape(state)
		go func() {
			resp, err := http.Get(target)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	return len(p), nil
}

func TestOIDCProvider_LoginRestoreLogout(t *testing.T) {
	issuer := newFakeIssuer(t)
	sessionPath := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	b := &browser{code: "good-code"}
	p := NewOIDCProvider(OIDCOptions{SessionPath: sessionPath, Out: b})
	if p.IsLoggedIn() {
		t.Fatal("new provider should not be logged in")
	}

	err := p.Login(ctx, LoginOptions{
		OIDCIssuer:  issuer.srv.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
		ClientName:  "Solid To-Do",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !p.IsLoggedIn() {
		t.Fatal("expected logged in after login")
	}
	if p.Issuer() != issuer.srv.URL {
		t.Errorf("expected issuer %q, got %q", issuer.srv.URL, p.Issuer())
	}
	if len(issuer.clientNames) != 1 || issuer.clientNames[0] != "Solid To-Do" {
		t.Errorf("expected one registration for 'Solid To-Do', got %v", issuer.clientNames)
	}
	// Port 0 is resolved before registering, so the registered redirect URI
	// is the one the browser is sent back to.
	if len(issuer.redirectURIs) != 1 || len(b.redirects) != 1 || issuer.redirectURIs[0] != b.redirects[0] {
		t.Errorf("registered %v, authorized with %v", issuer.redirectURIs, b.redirects)
	}
	if strings.Contains(b.redirects[0], ":0/") {
		t.Errorf("redirect URI still has port 0: %s", b.redirects[0])
	}

	info, err := os.Stat(sessionPath)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	resp, err := p.Fetch(ctx, issuer.srv.URL+"/doc", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected authenticated fetch to succeed, got %d", resp.StatusCode)
	}

	// A second process restores the stored session.
	restored := NewOIDCProvider(OIDCOptions{SessionPath: sessionPath})
	if err := restored.HandleIncomingRedirect(ctx, RedirectOptions{RestorePreviousSession: true}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.IsLoggedIn() {
		t.Fatal("expected restored session")
	}
	resp, err = restored.Fetch(ctx, issuer.srv.URL+"/doc", &FetchOptions{Method: http.MethodGet})
	if err != nil {
		t.Fatalf("fetch after restore: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected restored fetch to succeed, got %d", resp.StatusCode)
	}

	if err := restored.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if restored.IsLoggedIn() {
		t.Error("expected logged out")
	}
	if restored.HasStoredSession() {
		t.Error("session file should be removed")
	}
	if _, err := restored.Fetch(ctx, issuer.srv.URL+"/doc", nil); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestOIDCProvider_LoginStateMismatch(t *testing.T) {
	issuer := newFakeIssuer(t)
	sessionPath := filepath.Join(t.TempDir(), "session.json")

	p := NewOIDCProvider(OIDCOptions{
		SessionPath: sessionPath,
		Out:         &browser{code: "good-code", state: "forged"},
	})
	err := p.Login(context.Background(), LoginOptions{
		OIDCIssuer:  issuer.srv.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
		ClientID:    "preregistered",
	})
	if err == nil || !strings.Contains(err.Error(), "state mismatch") {
		t.Fatalf("expected state mismatch error, got %v", err)
	}
	if p.IsLoggedIn() {
		t.Error("should not be logged in")
	}
	if len(issuer.clientNames) != 0 {
		t.Error("client id given, registration should be skipped")
	}
	if issuer.exchanges != 0 {
		t.Error("no token exchange expected")
	}
}

func TestOIDCProvider_LoginRejectsIDTokenForOtherClient(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.audience = "someone-else"
	sessionPath := filepath.Join(t.TempDir(), "session.json")

	p := NewOIDCProvider(OIDCOptions{SessionPath: sessionPath, Out: &browser{code: "good-code"}})
	err := p.Login(context.Background(), LoginOptions{
		OIDCIssuer:  issuer.srv.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
		ClientID:    "preregistered",
	})
	if err == nil || !strings.Contains(err.Error(), "verify id token") {
		t.Fatalf("expected id token error, got %v", err)
	}
	if p.IsLoggedIn() {
		t.Error("should not be logged in")
	}
	if p.HasStoredSession() {
		t.Error("no session should be stored")
	}
}

func TestOIDCProvider_LoginRejectsIssuerMismatch(t *testing.T) {
	issuer := newFakeIssuer(t)
	issuer.advertisedIssuer = "https://elsewhere.example"

	p := NewOIDCProvider(OIDCOptions{SessionPath: filepath.Join(t.TempDir(), "session.json"), Out: &browser{code: "good-code"}})
	err := p.Login(context.Background(), LoginOptions{
		OIDCIssuer:  issuer.srv.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
		ClientID:    "preregistered",
	})
	if err == nil || !strings.Contains(err.Error(), "discover issuer") {
		t.Fatalf("expected discovery error, got %v", err)
	}
	if issuer.exchanges != 0 {
		t.Error("no token exchange expected")
	}
}

func TestListenRedirect_SkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	listener, redirectURL, err := listenRedirect(fmt.Sprintf("http://127.0.0.1:%d/callback", port))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	got := listener.Addr().(*net.TCPAddr).Port
	if got <= port || got >= port+callbackMaxPortAttempts {
		t.Errorf("expected a port after %d, got %d", port, got)
	}
	if want := fmt.Sprintf("http://127.0.0.1:%d/callback", got); redirectURL != want {
		t.Errorf("expected %s, got %s", want, redirectURL)
	}
}

func TestListenRedirect_PortZero(t *testing.T) {
	listener, redirectURL, err := listenRedirect("http://127.0.0.1:0/callback")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	want := fmt.Sprintf("http://127.0.0.1:%d/callback", listener.Addr().(*net.TCPAddr).Port)
	if redirectURL != want {
		t.Errorf("expected %s, got %s", want, redirectURL)
	}
}

func TestListenRedirect_BadPath(t *testing.T) {
	if _, _, err := listenRedirect("http://127.0.0.1:0/elsewhere"); err == nil {
		t.Error("expected path error")
	}
}

func TestOIDCProvider_LoginCancelled(t *testing.T) {
	issuer := newFakeIssuer(t)
	p := NewOIDCProvider(OIDCOptions{SessionPath: filepath.Join(t.TempDir(), "session.json")})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := p.Login(ctx, LoginOptions{
		OIDCIssuer:  issuer.srv.URL,
		RedirectURL: "http://127.0.0.1:0/callback",
		ClientID:    "preregistered",
	})
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestOIDCProvider_RestoreWithoutStoredSession(t *testing.T) {
	p := NewOIDCProvider(OIDCOptions{SessionPath: filepath.Join(t.TempDir(), "session.json")})
	if err := p.HandleIncomingRedirect(context.Background(), RedirectOptions{RestorePreviousSession: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsLoggedIn() {
		t.Error("expected not logged in")
	}
}

func TestOIDCProvider_RestoreExpiredWithoutRefreshToken(t *testing.T) {
	sessionPath := filepath.Join(t.TempDir(), "session.json")
	err := saveSession(sessionPath, &storedSession{
		Issuer:   "https://issuer.example",
		ClientID: "c",
		AuthURL:  "https://issuer.example/authorize",
		TokenURL: "https://issuer.example/token",
		Token: &oauth2.Token{
			AccessToken: "old",
			Expiry:      time.Now().Add(-time.Hour),
		},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	p := NewOIDCProvider(OIDCOptions{SessionPath: sessionPath})
	if err := p.HandleIncomingRedirect(context.Background(), RedirectOptions{RestorePreviousSession: true}); err == nil {
		t.Fatal("expected restore error for expired token")
	}
	if p.IsLoggedIn() {
		t.Error("expired session must not count as logged in")
	}
}

func TestOIDCProvider_NoRestoreRequested(t *testing.T) {
	sessionPath := filepath.Join(t.TempDir(), "session.json")
	saveSession(sessionPath, &storedSession{
		ClientID: "c",
		TokenURL: "https://issuer.example/token",
		Token:    &oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)},
	})

	p := NewOIDCProvider(OIDCOptions{SessionPath: sessionPath})
	if err := p.HandleIncomingRedirect(context.Background(), RedirectOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IsLoggedIn() {
		t.Error("session should only be restored when asked")
	}
}

func TestNewRequest_Options(t *testing.T) {
	req, err := NewRequest(context.Background(), "https://pod.example/tasks.json", &FetchOptions{
		Method: http.MethodPut,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   strings.NewReader("[]"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != http.MethodPut {
		t.Errorf("expected PUT, got %s", req.Method)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected content type header, got %q", req.Header.Get("Content-Type"))
	}

	req, _ = NewRequest(context.Background(), "https://pod.example/tasks.json", nil)
	if req.Method != http.MethodGet {
		t.Errorf("expected GET default, got %s", req.Method)
	}
}
