package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBackoffDoublesAndResets(t *testing.T) {
	l := NewLimiter("yahoo", 600)
	assert.Equal(t, time.Duration(0), l.Backoff())

	l.SignalRateLimited()
	first := l.Backoff()
	l.SignalRateLimited()
	assert.Equal(t, 2*first, l.Backoff())

	l.ResetBackoff()
	assert.Equal(t, time.Duration(0), l.Backoff())
	assert.Equal(t, "yahoo", l.Name())
}

func TestLimiterWaitHonoursContextDuringBackoff(t *testing.T) {
	l := NewLimiter("yahoo", 600)
	l.SignalRateLimited()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestLimiterWaitPassesWithoutBackoff(t *testing.T) {
	l := NewLimiter("fx", 600)
	require.NoError(t, l.Wait(context.Background()))
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	k := NewKeyedLimiter(3) // burst 1

	assert.True(t, k.Allow("10.0.0.1"))
	assert.False(t, k.Allow("10.0.0.1"))
	assert.True(t, k.Allow("10.0.0.2"))
}
