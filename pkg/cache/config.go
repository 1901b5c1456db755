package cache

import "time"

// RedisOption configures Redis cache.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
	OpTimeout    time.Duration
	StrictPing   bool
}

// WithRedisURL sets a redis:// connection URL. It takes precedence over
// host, port, password and db.
func WithRedisURL(url string) RedisOption {
	return func(c *RedisConfig) {
		c.URL = url
	}
}

// WithRedisHost sets Redis host.
func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) {
		c.Host = host
	}
}

// WithRedisPort sets Redis port.
func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) {
		c.Port = port
	}
}

// WithRedisPassword sets Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
	}
}

// WithRedisDB sets Redis database number.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) {
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix sets key prefix. Empty means keys are stored as given.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// WithRedisOpTimeout bounds every single command.
func WithRedisOpTimeout(d time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.OpTimeout = d
	}
}

// WithRedisStrictPing makes NewRedisCache fail when the startup ping fails.
func WithRedisStrictPing(strict bool) RedisOption {
	return func(c *RedisConfig) {
		c.StrictPing = strict
	}
}

// MemoryOption configures Memory cache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds memory cache configuration.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
	Now             func() time.Time
}

// WithMemoryMaxSize sets max number of plain keys. Sets and lists are not counted.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		c.MaxSize = size
	}
}

// WithMemoryCleanup sets cleanup interval.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
	}
}

// WithMemoryClock replaces time.Now, mostly for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) {
		c.Now = now
	}
}
