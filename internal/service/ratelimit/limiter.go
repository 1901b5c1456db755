package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
)

// Limiter decides whether one more request for key fits the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	count int
	start time.Time
}

// FixedWindow counts requests per key in fixed windows that start at the
// first request for the key. State is process local.
type FixedWindow struct {
	mu     sync.Mutex
	m      map[string]*window
	limit  int
	window time.Duration
	now    func() time.Time
	sweeps int
}

// Option configures FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// NewFixedWindow creates an in-memory limiter allowing limit requests per w.
func NewFixedWindow(limit int, w time.Duration, opts ...Option) *FixedWindow {
	l := &FixedWindow{
		m:      make(map[string]*window),
		limit:  limit,
		window: w,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow returns true if the request fits the window for key.
func (l *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep(now)

	w, ok := l.m[key]
	if !ok || now.Sub(w.start) >= l.window {
		l.m[key] = &window{count: 1, start: now}
		return true, nil
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Remaining returns how many requests key may still make in its window.
func (l *FixedWindow) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.m[key]
	if !ok || l.now().Sub(w.start) >= l.window {
		return l.limit
	}
	return l.limit - w.count
}

// maybeSweep drops expired windows every 1024 calls so the map stays bounded
// by the number of active keys.
func (l *FixedWindow) maybeSweep(now time.Time) {
	l.sweeps++
	if l.sweeps < 1024 {
		return
	}
	l.sweeps = 0
	for k, w := range l.m {
		if now.Sub(w.start) >= l.window {
			delete(l.m, k)
		}
	}
}

// StoreWindow keeps the counters on the shared store with INCR + EXPIRE so
// several relay processes share one budget.
type StoreWindow struct {
	store  cache.Service
	limit  int
	window time.Duration
	prefix string
}

// NewStoreWindow creates a store backed limiter.
func NewStoreWindow(store cache.Service, limit int, w time.Duration) *StoreWindow {
	return &StoreWindow{store: store, limit: limit, window: w, prefix: "ratelimit"}
}

// Allow increments the counter for key. The first hit of a window sets the
// expiry.
func (l *StoreWindow) Allow(ctx context.Context, key string) (bool, error) {
	k := cache.GenerateKey(l.prefix, key)
	n, err := l.store.Increment(ctx, k)
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if _, err := l.store.Expire(ctx, k, l.window); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return n <= int64(l.limit), nil
}
