package cache

import (
	"context"
	"errors"
	"time"

	storecache "github.com/mack4pf/telegram-automated-signal/pkg/cache"
)

// StoreCache keeps bytes in the shared store so that several relay processes
// reuse one upstream response.
type StoreCache struct {
	store  storecache.Service
	prefix string
}

func NewStoreCache(store storecache.Service, prefix string) *StoreCache {
	return &StoreCache{store: store, prefix: prefix}
}

func (s *StoreCache) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	if err := s.store.Get(ctx, storecache.GenerateKey(s.prefix, key), &b); err != nil {
		if errors.Is(err, storecache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *StoreCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.store.Set(ctx, storecache.GenerateKey(s.prefix, key), value, ttl)
}
