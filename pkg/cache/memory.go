package cache

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryItem stores cached value with expiration. A zero ExpireAt never expires.
type MemoryItem struct {
	Value    []byte
	ExpireAt time.Time
}

func (m *MemoryItem) expired(now time.Time) bool {
	return !m.ExpireAt.IsZero() && now.After(m.ExpireAt)
}

// MemoryCache implements Service in-process. It is used when no Redis is
// configured and in tests. Plain keys are LRU-evicted past MaxSize.
type MemoryCache struct {
	data   map[string]*MemoryItem
	access map[string]time.Time
	sets   map[string]map[string]struct{}
	lists  map[string][]string
	mutex  sync.Mutex

	maxSize       int
	now           func() time.Time
	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         10000,
		CleanupInterval: 5 * time.Minute,
		Now:             time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	mc := &MemoryCache{
		data:          make(map[string]*MemoryItem),
		access:        make(map[string]time.Time),
		sets:          make(map[string]map[string]struct{}),
		lists:         make(map[string][]string),
		maxSize:       cfg.MaxSize,
		now:           cfg.Now,
		cleanupTicker: time.NewTicker(cfg.CleanupInterval),
		done:          make(chan struct{}),
	}

	go mc.cleanupExpired()
	return mc
}

func (mc *MemoryCache) Ping(_ context.Context) error {
	return nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if _, exists := mc.data[key]; !exists && mc.maxSize > 0 && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}

	item := &MemoryItem{Value: data}
	if expiration > 0 {
		item.ExpireAt = mc.now().Add(expiration)
	}
	mc.data[key] = item
	mc.access[key] = mc.now()
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mutex.Lock()
	item, ok := mc.lookup(key)
	if ok {
		mc.access[key] = mc.now()
	}
	mc.mutex.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return decode(item.Value, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		delete(mc.data, key)
		delete(mc.access, key)
		delete(mc.sets, key)
		delete(mc.lists, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	for _, key := range keys {
		if _, ok := mc.lookup(key); ok {
			return true, nil
		}
		if len(mc.sets[key]) > 0 || len(mc.lists[key]) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (mc *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	item, ok := mc.lookup(key)
	if !ok {
		mc.data[key] = &MemoryItem{Value: []byte("1")}
		mc.access[key] = mc.now()
		return 1, nil
	}

	val, err := strconv.ParseInt(string(item.Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value is not an integer")
	}
	val++
	item.Value = []byte(strconv.FormatInt(val, 10))
	return val, nil
}

func (mc *MemoryCache) Expire(_ context.Context, key string, expiration time.Duration) (bool, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	if item, ok := mc.lookup(key); ok {
		item.ExpireAt = mc.now().Add(expiration)
		return true, nil
	}
	return false, nil
}

func (mc *MemoryCache) SAdd(_ context.Context, key string, members ...string) (int64, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	set, ok := mc.sets[key]
	if !ok {
		set = make(map[string]struct{})
		mc.sets[key] = set
	}

	var added int64
	for _, m := range members {
		if _, exists := set[m]; !exists {
			set[m] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (mc *MemoryCache) SRem(_ context.Context, key string, members ...string) (int64, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	set := mc.sets[key]
	var removed int64
	for _, m := range members {
		if _, exists := set[m]; exists {
			delete(set, m)
			removed++
		}
	}
	if len(set) == 0 {
		delete(mc.sets, key)
	}
	return removed, nil
}

func (mc *MemoryCache) SMembers(_ context.Context, key string) ([]string, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	set := mc.sets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (mc *MemoryCache) SCard(_ context.Context, key string) (int64, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return int64(len(mc.sets[key])), nil
}

// Keys matches glob patterns the way Redis KEYS does for the '*', '?' and
// '[...]' forms.
func (mc *MemoryCache) Keys(_ context.Context, pattern string) ([]string, error) {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	seen := make(map[string]struct{})
	match := func(key string) {
		if ok, err := path.Match(pattern, key); err == nil && ok {
			seen[key] = struct{}{}
		}
	}

	now := mc.now()
	for key, item := range mc.data {
		if !item.expired(now) {
			match(key)
		}
	}
	for key := range mc.sets {
		match(key)
	}
	for key := range mc.lists {
		match(key)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (mc *MemoryCache) LPushTrim(_ context.Context, key string, maxLen int64, values ...string) error {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()

	list := mc.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	if maxLen > 0 && int64(len(list)) > maxLen {
		list = list[:maxLen]
	}
	mc.lists[key] = list
	return nil
}

// List returns a copy of a list stored via LPushTrim, newest first.
func (mc *MemoryCache) List(key string) []string {
	mc.mutex.Lock()
	defer mc.mutex.Unlock()
	return append([]string(nil), mc.lists[key]...)
}

// lookup must be called with the mutex held.
func (mc *MemoryCache) lookup(key string) (*MemoryItem, bool) {
	item, exists := mc.data[key]
	if !exists {
		return nil, false
	}
	if item.expired(mc.now()) {
		delete(mc.data, key)
		delete(mc.access, key)
		return nil, false
	}
	return item, true
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, accessTime := range mc.access {
		if oldestKey == "" || accessTime.Before(oldestTime) {
			oldestTime = accessTime
			oldestKey = key
		}
	}

	if oldestKey != "" {
		delete(mc.data, oldestKey)
		delete(mc.access, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-mc.cleanupTicker.C:
			mc.mutex.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
					delete(mc.access, key)
				}
			}
			mc.mutex.Unlock()
		case <-mc.done:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		mc.cleanupTicker.Stop()
		close(mc.done)
	})
	return nil
}
