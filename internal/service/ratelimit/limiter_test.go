package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindow_ThirtyFirstRejected(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	l := NewFixedWindow(30, time.Minute, WithClock(func() time.Time { return now }))

	for i := 0; i < 30; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4:EURUSD")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i+1)
	}
	ok, _ := l.Allow(ctx, "1.2.3.4:EURUSD")
	assert.False(t, ok)
	assert.Equal(t, 0, l.Remaining("1.2.3.4:EURUSD"))

	ok, _ = l.Allow(ctx, "1.2.3.4:GBPUSD")
	assert.True(t, ok, "other ticker has its own window")

	start := now
	now = start.Add(time.Minute - time.Millisecond)
	ok, _ = l.Allow(ctx, "1.2.3.4:EURUSD")
	assert.False(t, ok, "window still open 1ms before it ends")

	now = start.Add(time.Minute)
	ok, _ = l.Allow(ctx, "1.2.3.4:EURUSD")
	assert.True(t, ok, "new window at exactly 60000ms")
	assert.Equal(t, 29, l.Remaining("1.2.3.4:EURUSD"))
}

func TestStoreWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	store := cache.NewMemoryCache(cache.WithMemoryClock(func() time.Time { return now }))
	defer store.Close()

	l := NewStoreWindow(store, 2, time.Minute)
	for _, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "ip:EURUSD")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}

	now = now.Add(time.Minute + time.Second)
	ok, err := l.Allow(ctx, "ip:EURUSD")
	require.NoError(t, err)
	assert.True(t, ok)
}
