package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
)

// RedisDeadLetters keeps the most recent dropped deliveries in a capped list
// on the shared store.
type RedisDeadLetters struct {
	store  cache.Service
	key    string
	maxLen int64
}

// DeadLetterOption configures RedisDeadLetters.
type DeadLetterOption func(*RedisDeadLetters)

// WithDeadLetterKey sets the list key.
func WithDeadLetterKey(key string) DeadLetterOption {
	return func(r *RedisDeadLetters) {
		r.key = key
	}
}

// WithDeadLetterMax caps the list length.
func WithDeadLetterMax(n int64) DeadLetterOption {
	return func(r *RedisDeadLetters) {
		r.maxLen = n
	}
}

// NewRedisDeadLetters creates a dead letter sink over the store.
func NewRedisDeadLetters(store cache.Service, opts ...DeadLetterOption) *RedisDeadLetters {
	r := &RedisDeadLetters{
		store:  store,
		key:    "delivery:dead_letters",
		maxLen: 500,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisDeadLetters) Put(ctx context.Context, dl DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if err := r.store.LPushTrim(ctx, r.key, r.maxLen, string(data)); err != nil {
		return fmt.Errorf("lpush dead letter: %w", err)
	}
	return nil
}
