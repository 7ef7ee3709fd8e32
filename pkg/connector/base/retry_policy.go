package base

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/comet/pkg/errors"
)

// RetryPolicy retries transient failures with exponential backoff and
// jitter. It is used for non-rate-limit transients; 429 handling
// lives in the REST client.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	jitter      float64
}

// NewRetryPolicy creates a policy with exponential backoff.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) *RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &RetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    30 * time.Second,
		multiplier:  2.0,
		jitter:      0.1,
	}
}

// Execute runs fn, retrying retryable errors up to the attempt limit.
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return p.ExecuteWithCondition(ctx, fn, errors.IsRetryable)
}

// ExecuteWithCondition runs fn, retrying while shouldRetry approves
// the returned error.
func (p *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.delay(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// delay computes the backoff for the given attempt with jitter.
func (p *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt-1))
	if d > float64(p.maxDelay) {
		d = float64(p.maxDelay)
	}

	// Spread retries out so concurrent callers do not synchronize.
	d += d * p.jitter * (rand.Float64()*2 - 1) //nolint:gosec // G404: jitter only

	return time.Duration(d)
}
