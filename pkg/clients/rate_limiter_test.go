package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucketRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "burst token %d", i)
	}
	assert.False(t, tb.Allow(), "bucket exhausted")
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucketRateLimiter(100, 1)
	require.True(t, tb.Allow())
	require.False(t, tb.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, tb.Allow(), "tokens refill over time")
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucketRateLimiter(50, 1)
	require.True(t, tb.Allow())

	start := time.Now()
	err := tb.Wait(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewTokenBucketRateLimiter(0.001, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenBucketStats(t *testing.T) {
	tb := NewTokenBucketRateLimiter(10, 2)
	tb.Allow()
	tb.Allow()
	tb.Allow()

	stats := tb.GetStats()
	assert.Equal(t, float64(10), stats.Rate)
	assert.Equal(t, 2, stats.Burst)
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
}
