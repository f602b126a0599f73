package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DiscoveryTimeout bounds issuer discovery and client registration requests.
const DiscoveryTimeout = 10 * time.Second

// discover loads the issuer's OpenID configuration. The advertised issuer
// must match the one asked for. The registration endpoint is "" when the
// issuer does not offer dynamic registration.
func discover(ctx context.Context, issuer string) (*oidc.Provider, string, error) {
	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, "", fmt.Errorf("discover issuer: %w", err)
	}
	var extra struct {
		RegistrationEndpoint string `json:"registration_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, "", fmt.Errorf("discover issuer: %w", err)
	}
	return provider, extra.RegistrationEndpoint, nil
}

// verifyIDToken checks the ID token that came with token: signature,
// issuer, audience and expiry. Without the openid scope none is expected.
func verifyIDToken(ctx context.Context, provider *oidc.Provider, cfg *oauth2.Config, token *oauth2.Token) error {
	if !slices.Contains(cfg.Scopes, oidc.ScopeOpenID) {
		return nil
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return errors.New("token response has no id_token")
	}
	if _, err := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}).Verify(ctx, raw); err != nil {
		return fmt.Errorf("verify id token: %w", err)
	}
	return nil
}

type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ApplicationType         string   `json:"application_type"`
}

type registrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// register performs OpenID dynamic client registration for a public
// native client.
func register(ctx context.Context, client *http.Client, endpoint, clientName, redirectURL string) (*registrationResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
	defer cancel()

	body, err := json.Marshal(registrationRequest{
		ClientName:              clientName,
		RedirectURIs:            []string{redirectURL},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		ApplicationType:         "native",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("register client: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var reg registrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		return nil, fmt.Errorf("register client: invalid response: %w", err)
	}
	if reg.ClientID == "" {
		return nil, fmt.Errorf("register client: no client_id in response")
	}
	return &reg, nil
}
