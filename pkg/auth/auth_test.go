package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/errors"
)

func TestAPIKeyAuthenticatorDefaultsToBearer(t *testing.T) {
	a, err := NewAPIKeyAuthenticator("", "secret")
	require.NoError(t, err)

	headers, err := a.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer secret"}, headers)
}

func TestAPIKeyAuthenticatorCustomHeader(t *testing.T) {
	a, err := NewAPIKeyAuthenticator("x-api-key", "secret")
	require.NoError(t, err)

	headers, err := a.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x-api-key": "secret"}, headers)
}

func TestAPIKeyAuthenticatorRequiresKey(t *testing.T) {
	_, err := NewAPIKeyAuthenticator("", "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestOAuth2ExchangeAndCache(t *testing.T) {
	exchanges := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "rt-1", r.Form.Get("refresh_token"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		assert.Equal(t, "cs", r.Form.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	a, err := NewOAuth2RefreshAuthenticator(server.URL, "cid", "cs", "rt-1")
	require.NoError(t, err)

	headers, err := a.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer at-1", headers["Authorization"])

	// Second call serves from the cache, no new exchange.
	_, err = a.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exchanges)
}

func TestOAuth2ForceRefresh(t *testing.T) {
	exchanges := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		exchanges++
		w.Header().Set("Content-Type", "application/json")
		if exchanges == 1 {
			_, _ = w.Write([]byte(`{"access_token":"at-1"}`))
		} else {
			_, _ = w.Write([]byte(`{"access_token":"at-2"}`))
		}
	}))
	defer server.Close()

	a, err := NewOAuth2RefreshAuthenticator(server.URL, "cid", "cs", "rt")
	require.NoError(t, err)

	headers, err := a.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer at-1", headers["Authorization"])

	require.NoError(t, a.ForceRefresh(context.Background()))

	headers, err = a.Headers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer at-2", headers["Authorization"])
	assert.Equal(t, 2, exchanges)
}

func TestOAuth2NonOKStatusFailsImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	a, err := NewOAuth2RefreshAuthenticator(server.URL, "cid", "cs", "rt")
	require.NoError(t, err)

	_, err = a.Headers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestOAuth2MissingAccessTokenFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer server.Close()

	a, err := NewOAuth2RefreshAuthenticator(server.URL, "cid", "cs", "rt")
	require.NoError(t, err)

	_, err = a.Headers(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
}

func TestOAuth2MissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		tokenURL string
		clientID string
		secret   string
		refresh  string
	}{
		{"no token url", "", "cid", "cs", "rt"},
		{"no client id", "http://x", "", "cs", "rt"},
		{"no secret", "http://x", "cid", "", "rt"},
		{"no refresh token", "http://x", "cid", "cs", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOAuth2RefreshAuthenticator(tt.tokenURL, tt.clientID, tt.secret, tt.refresh)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestFromCredentials(t *testing.T) {
	apiKey, err := FromCredentials("api_key", map[string]string{"api_key": "k"})
	require.NoError(t, err)
	assert.IsType(t, &APIKeyAuthenticator{}, apiKey)

	oauth, err := FromCredentials("oauth2", map[string]string{
		"token_url":     "http://x",
		"client_id":     "cid",
		"client_secret": "cs",
		"refresh_token": "rt",
	})
	require.NoError(t, err)
	assert.IsType(t, &OAuth2RefreshAuthenticator{}, oauth)

	_, err = FromCredentials("kerberos", nil)
	require.Error(t, err)
}
