package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/ajitpratap0/comet/pkg/config"
	"github.com/ajitpratap0/comet/pkg/errors"
	cometjson "github.com/ajitpratap0/comet/pkg/json"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/metrics"
)

const (
	// rateLimitRetryAttempts is the number of attempts made against a
	// rate-limited endpoint before giving up and surfacing the 429.
	rateLimitRetryAttempts = 12

	// rateLimitBackoffBase is the initial delay before the first retry.
	// Subsequent delays double.
	rateLimitBackoffBase = time.Second

	// rateLimitBackoffMax caps the delay between retries.
	rateLimitBackoffMax = 60 * time.Second
)

// RESTClient is the shared HTTP client used by all source connectors.
// It applies rate limiting, circuit breaking and transparent retry of
// HTTP 429 responses with exponential backoff.
type RESTClient struct {
	httpClient  *http.Client
	rateLimiter RateLimiter
	breaker     *CircuitBreaker
	collector   *metrics.Collector
	name        string
}

// NewRESTClient builds a client from connector configuration. The
// rate limiter and circuit breaker are enabled per the Reliability
// section.
func NewRESTClient(name string, cfg *config.BaseConfig) *RESTClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     cfg.Timeouts.Idle,
	}
	// Opportunistic HTTP/2 for APIs that support it.
	_ = http2.ConfigureTransport(transport)

	c := &RESTClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeouts.Request,
		},
		collector: metrics.NewCollector(name),
		name:      name,
	}

	if cfg.Reliability.RateLimitPerSec > 0 {
		c.rateLimiter = NewRateLimiter(cfg.Reliability.RateLimitPerSec, cfg.Reliability.RateLimitPerSec)
	}
	if cfg.Reliability.CircuitBreaker {
		c.breaker = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	return c
}

// Send performs an HTTP request. On a 429 response it retries up to
// rateLimitRetryAttempts times with exponential backoff (doubling the
// delay each attempt). If every attempt is rate limited, the final
// 429 response is returned to the caller rather than an error, so the
// caller decides how to surface it. Any other status is returned on
// the first attempt.
func (c *RESTClient) Send(ctx context.Context, method, rawURL string, headers map[string]string, params url.Values) (*http.Response, error) {
	reqURL := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		reqURL = rawURL + sep + params.Encode()
	}

	var resp *http.Response
	delay := rateLimitBackoffBase

	for attempt := 0; attempt < rateLimitRetryAttempts; attempt++ {
		if attempt > 0 {
			c.collector.RecordRateLimitRetry()
			logger.Get().Debug(fmt.Sprintf("rate limited, retrying %s in %s (attempt %d/%d)",
				rawURL, delay, attempt+1, rateLimitRetryAttempts))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled during rate limit backoff")
			}

			delay *= 2
			if delay > rateLimitBackoffMax {
				delay = rateLimitBackoffMax
			}
		}

		var err error
		resp, err = c.doOnce(ctx, method, reqURL, headers)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Drain so the connection can be reused before retrying.
		if attempt < rateLimitRetryAttempts-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
	}

	return resp, nil
}

func (c *RESTClient) doOnce(ctx context.Context, method, reqURL string, headers map[string]string) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait failed")
		}
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return nil, errors.New(errors.ErrorTypeConnection, "circuit breaker is open").
			WithDetail("url", reqURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to build request").
			WithDetail("url", reqURL)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.collector.ObservePageFetch(time.Since(start))

	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		c.collector.RecordRequest("error")
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("url", reqURL)
	}

	if c.breaker != nil {
		if resp.StatusCode >= 500 {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	c.collector.RecordRequest(statusClass(resp.StatusCode))

	return resp, nil
}

// GetJSON performs a GET and decodes the JSON response body into out.
// Non-2xx statuses (after 429 retries are exhausted) are converted to
// typed errors; a malformed body is an ErrorTypeData.
func (c *RESTClient) GetJSON(ctx context.Context, rawURL string, headers map[string]string, params url.Values, out interface{}) error {
	resp, err := c.Send(ctx, http.MethodGet, rawURL, headers, params)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, rawURL, string(body))
	}

	dec := cometjson.GetDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode response body").
			WithDetail("url", rawURL)
	}

	return nil
}

// statusError maps an HTTP status to a typed error.
func statusError(status int, rawURL, body string) error {
	var errType errors.ErrorType
	switch {
	case status == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case status >= 500:
		errType = errors.ErrorTypeConnection
	default:
		errType = errors.ErrorTypeAPI
	}

	return errors.New(errType, fmt.Sprintf("unexpected status %d", status)).
		WithDetail("url", rawURL).
		WithDetail("status", status).
		WithDetail("body", body)
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
