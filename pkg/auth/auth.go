// Package auth provides request authentication for source connectors.
// Two schemes are supported: static API keys and OAuth2 refresh-token
// exchange with in-memory access token caching.
package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/comet/pkg/errors"
	cometjson "github.com/ajitpratap0/comet/pkg/json"
)

// Authenticator supplies the HTTP headers that authenticate an
// outbound API request.
type Authenticator interface {
	// Headers returns the authentication headers for a request.
	Headers(ctx context.Context) (map[string]string, error)
}

// APIKeyAuthenticator authenticates with a static bearer token or a
// named header.
type APIKeyAuthenticator struct {
	header string
	value  string
}

// NewAPIKeyAuthenticator builds a static-key authenticator. An empty
// header defaults to a standard bearer Authorization header.
func NewAPIKeyAuthenticator(header, key string) (*APIKeyAuthenticator, error) {
	if key == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "api key is required")
	}
	if header == "" {
		header = "Authorization"
		key = "Bearer " + key
	}
	return &APIKeyAuthenticator{header: header, value: key}, nil
}

// Headers returns the configured key header.
func (a *APIKeyAuthenticator) Headers(_ context.Context) (map[string]string, error) {
	return map[string]string{a.header: a.value}, nil
}

// OAuth2RefreshAuthenticator exchanges a long-lived refresh token for
// an access token on first use and caches it for the lifetime of the
// run. Expired tokens are not refreshed automatically; callers that
// observe a 401 can call ForceRefresh to obtain a new token.
type OAuth2RefreshAuthenticator struct {
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
}

// NewOAuth2RefreshAuthenticator validates the credential set and
// returns an authenticator. No network call is made until the first
// Headers invocation.
func NewOAuth2RefreshAuthenticator(tokenURL, clientID, clientSecret, refreshToken string) (*OAuth2RefreshAuthenticator, error) {
	switch {
	case tokenURL == "":
		return nil, errors.New(errors.ErrorTypeConfig, "token_url is required")
	case clientID == "":
		return nil, errors.New(errors.ErrorTypeConfig, "client_id is required")
	case clientSecret == "":
		return nil, errors.New(errors.ErrorTypeConfig, "client_secret is required")
	case refreshToken == "":
		return nil, errors.New(errors.ErrorTypeConfig, "refresh_token is required")
	}

	return &OAuth2RefreshAuthenticator{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Headers returns a bearer header with the cached access token,
// performing the refresh-token exchange on first use.
func (a *OAuth2RefreshAuthenticator) Headers(ctx context.Context) (map[string]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken == "" {
		token, err := a.exchange(ctx)
		if err != nil {
			return nil, err
		}
		a.accessToken = token
	}

	return map[string]string{"Authorization": "Bearer " + a.accessToken}, nil
}

// ForceRefresh discards the cached access token and performs a fresh
// refresh-token exchange.
func (a *OAuth2RefreshAuthenticator) ForceRefresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	token, err := a.exchange(ctx)
	if err != nil {
		return err
	}
	a.accessToken = token
	return nil
}

// exchange performs the refresh_token grant. Caller must hold the lock.
func (a *OAuth2RefreshAuthenticator) exchange(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {a.refreshToken},
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "token exchange request failed").
			WithDetail("token_url", a.tokenURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.New(errors.ErrorTypeAuthentication,
			fmt.Sprintf("token exchange returned status %d", resp.StatusCode)).
			WithDetail("token_url", a.tokenURL).
			WithDetail("body", string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := cometjson.GetDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to decode token response")
	}

	if tokenResp.AccessToken == "" {
		return "", errors.New(errors.ErrorTypeAuthentication, "token response missing access_token").
			WithDetail("token_url", a.tokenURL)
	}

	return tokenResp.AccessToken, nil
}

// FromCredentials constructs an authenticator from a connector's
// Security section. Supported auth types are "api_key" and "oauth2".
func FromCredentials(authType string, creds map[string]string) (Authenticator, error) {
	switch authType {
	case "api_key", "":
		return NewAPIKeyAuthenticator(creds["api_key_header"], creds["api_key"])
	case "oauth2":
		return NewOAuth2RefreshAuthenticator(
			creds["token_url"],
			creds["client_id"],
			creds["client_secret"],
			creds["refresh_token"],
		)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported auth type %q", authType))
	}
}
