package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/errors"
)

func testConfig() *config.BaseConfig {
	cfg := config.NewBaseConfig("test", "source")
	cfg.Reliability.CircuitBreaker = false
	return cfg
}

func TestSendRetriesRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewRESTClient("test", testConfig())
	resp, err := c.Send(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

func TestSendReturnsNonRateLimitStatusImmediately(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewRESTClient("test", testConfig())
	resp, err := c.Send(context.Background(), http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, attempts, "only 429 is retried at this layer")
}

func TestSendCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	c := NewRESTClient("test", testConfig())
	_, err := c.Send(ctx, http.MethodGet, server.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestGetJSONDecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"a"}]}`))
	}))
	defer server.Close()

	c := NewRESTClient("test", testConfig())

	var body map[string]interface{}
	err := c.GetJSON(context.Background(), server.URL,
		map[string]string{"Authorization": "Bearer tok"},
		map[string][]string{"limit": {"5"}},
		&body)
	require.NoError(t, err)
	assert.Contains(t, body, "data")
}

func TestGetJSONMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	c := NewRESTClient("test", testConfig())
	err := c.GetJSON(context.Background(), server.URL, nil, nil, &map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestGetJSONStatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		wantType errors.ErrorType
	}{
		{http.StatusUnauthorized, errors.ErrorTypeAuthentication},
		{http.StatusForbidden, errors.ErrorTypeAuthentication},
		{http.StatusNotFound, errors.ErrorTypeAPI},
		{http.StatusInternalServerError, errors.ErrorTypeConnection},
	}

	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c := NewRESTClient("test", testConfig())
		err := c.GetJSON(context.Background(), server.URL, nil, nil, &map[string]interface{}{})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, tt.wantType), "status %d", tt.status)

		server.Close()
	}
}
