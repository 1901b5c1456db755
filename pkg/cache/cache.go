package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines the key/value and set operations the relay keeps in the
// shared store.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)

	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	// LPushTrim prepends values to a list and keeps at most maxLen items.
	LPushTrim(ctx context.Context, key string, maxLen int64, values ...string) error

	Ping(ctx context.Context) error
	Close() error
}

// encode turns a value into the bytes stored under a key. Strings are stored
// raw so that plain values like "true" stay readable by other clients.
func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}

// GetString is a convenience wrapper for string values.
func GetString(ctx context.Context, c Service, key string) (string, error) {
	var s string
	if err := c.Get(ctx, key, &s); err != nil {
		return "", err
	}
	return s, nil
}

