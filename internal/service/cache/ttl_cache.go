package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	v   []byte
	exp time.Time
}

// TTLOption configures TTLCache.
type TTLOption func(*TTLCache)

// WithTTLClock replaces time.Now.
func WithTTLClock(now func() time.Time) TTLOption {
	return func(c *TTLCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxEntries bounds the cache. When full, expired entries are purged and,
// if that is not enough, the entry closest to expiry is evicted.
func WithMaxEntries(n int) TTLOption {
	return func(c *TTLCache) {
		c.maxEntries = n
	}
}

// TTLCache is a process-local BytesCache.
type TTLCache struct {
	mu         sync.RWMutex
	m          map[string]entry
	maxEntries int
	now        func() time.Time
}

func NewTTLCache(opts ...TTLOption) *TTLCache {
	c := &TTLCache{m: make(map[string]entry), maxEntries: 256, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.m[key]; !exists && c.maxEntries > 0 && len(c.m) >= c.maxEntries {
		c.evictLocked()
	}
	c.m[key] = entry{v: value, exp: exp}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *TTLCache) evictLocked() {
	now := c.now()
	for k, e := range c.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.m, k)
		}
	}
	if len(c.m) < c.maxEntries {
		return
	}

	var victim string
	var soonest time.Time
	for k, e := range c.m {
		if victim == "" || (!e.exp.IsZero() && (soonest.IsZero() || e.exp.Before(soonest))) {
			victim, soonest = k, e.exp
		}
	}
	delete(c.m, victim)
}
