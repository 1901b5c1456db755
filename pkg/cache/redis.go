package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Service using Redis.
type RedisCache struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// NewRedisCache creates a Redis cache client. The startup ping only fails
// construction when WithRedisStrictPing(true) is set; otherwise the client is
// returned and go-redis keeps reconnecting in the background.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	cfg := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		OpTimeout:    5 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	var redisOpts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisOpts = parsed
	} else {
		redisOpts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	redisOpts.PoolSize = cfg.PoolSize
	redisOpts.PoolTimeout = cfg.PoolTimeout
	redisOpts.MinIdleConns = cfg.MinIdleConns

	return newRedisCache(redis.NewClient(redisOpts), cfg)
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, opts ...RedisOption) (*RedisCache, error) {
	cfg := &RedisConfig{OpTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	return newRedisCache(client, cfg)
}

func newRedisCache(client *redis.Client, cfg *RedisConfig) (*RedisCache, error) {
	c := &RedisCache{
		client:    client,
		prefix:    cfg.Prefix,
		opTimeout: cfg.OpTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil && cfg.StrictPing {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return c, nil
}

// Client returns underlying redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}

	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.Set(ctx, c.wrapKey(key), data, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, c.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	return decode(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.Unlink(ctx, c.wrapKeys(keys...)...).Err()
}

func (c *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	result, err := c.client.Exists(ctx, c.wrapKeys(keys...)...).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func (c *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.Incr(ctx, c.wrapKey(key)).Result()
}

func (c *RedisCache) Expire(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.Expire(ctx, c.wrapKey(key), expiration).Result()
}

func (c *RedisCache) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.SAdd(ctx, c.wrapKey(key), toArgs(members)...).Result()
}

func (c *RedisCache) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.SRem(ctx, c.wrapKey(key), toArgs(members)...).Result()
}

func (c *RedisCache) SMembers(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.SMembers(ctx, c.wrapKey(key)).Result()
}

func (c *RedisCache) SCard(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.client.SCard(ctx, c.wrapKey(key)).Result()
}

func (c *RedisCache) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	keys, err := c.client.Keys(ctx, c.wrapKey(pattern)).Result()
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = c.unwrapKey(k)
	}
	return keys, nil
}

func (c *RedisCache) LPushTrim(ctx context.Context, key string, maxLen int64, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	key = c.wrapKey(key)
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, toArgs(values)...)
	if maxLen > 0 {
		pipe.LTrim(ctx, key, 0, maxLen-1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *RedisCache) wrapKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

func (c *RedisCache) unwrapKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, c.prefix+":")
}

func (c *RedisCache) wrapKeys(keys ...string) []string {
	wrapped := make([]string, len(keys))
	for i, key := range keys {
		wrapped[i] = c.wrapKey(key)
	}
	return wrapped
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
