package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryLimiter(limit int, window time.Duration) (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter(limit, window)
	l.now = clock.now
	return l, clock
}

func TestMemoryLimiterBurstThenRefill(t *testing.T) {
	l, clock := newTestMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.InDelta(t, float64(20*time.Second), float64(retryAfter), float64(time.Millisecond))

	clock.advance(21 * time.Second)

	allowed, _, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestMemoryLimiterDeniedRequestsDoNotConsume(t *testing.T) {
	l, clock := newTestMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	allowed, _, _ := l.Allow(ctx, "a")
	require.True(t, allowed)
	for i := 0; i < 5; i++ {
		allowed, _, _ = l.Allow(ctx, "a")
		require.False(t, allowed)
	}

	clock.advance(61 * time.Second)
	allowed, _, _ = l.Allow(ctx, "a")
	assert.True(t, allowed)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	allowed, _, _ := l.Allow(ctx, "a")
	assert.True(t, allowed)
	allowed, _, _ = l.Allow(ctx, "b")
	assert.True(t, allowed)
	allowed, _, _ = l.Allow(ctx, "a")
	assert.False(t, allowed)
}

func TestMemoryLimiterPrunesIdleKeys(t *testing.T) {
	l, clock := newTestMemoryLimiter(1, time.Minute)
	ctx := context.Background()

	_, _, _ = l.Allow(ctx, "a")
	_, _, _ = l.Allow(ctx, "b")
	assert.Len(t, l.buckets, 2)

	clock.advance(3 * time.Minute)
	_, _, _ = l.Allow(ctx, "c")
	assert.Len(t, l.buckets, 1)
	assert.Contains(t, l.buckets, "c")
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(Config{Limit: 0}))

	mem, ok := New(Config{Limit: 10, Window: time.Minute}).(*MemoryLimiter)
	require.True(t, ok)
	assert.Equal(t, 10, mem.limit)

	l := New(Config{Limit: 10, RedisAddr: "127.0.0.1:6379"})
	rl, ok := l.(*RedisLimiter)
	require.True(t, ok)
	assert.Equal(t, time.Minute, rl.window)
	assert.Equal(t, "photographies:ratelimit:", rl.prefix)
	require.NoError(t, rl.Close())
}
