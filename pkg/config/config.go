package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"production"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"3000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		TrustedProxies  []string      `yaml:"trusted_proxies"`
	} `yaml:"server"`
	Log struct {
		Level        string        `yaml:"level" default:"info"`
		Format       string        `yaml:"format" default:"json"`
		Output       string        `yaml:"output" default:"stdout"`
		MaxSizeMB    int           `yaml:"max_size_mb" default:"50"`
		MaxBackups   int           `yaml:"max_backups" default:"5"`
		MaxAgeDays   int           `yaml:"max_age_days" default:"14"`
		CollectTopic string        `yaml:"collect_topic"`
		CollectEvery time.Duration `yaml:"collect_every" default:"30s"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Redis struct {
		Backend        string        `yaml:"backend" default:"redis"`
		URL            string        `yaml:"url"`
		Host           string        `yaml:"host" default:"localhost"`
		Port           int           `yaml:"port" default:"6379"`
		Password       string        `yaml:"password"`
		DB             int           `yaml:"db"`
		Prefix         string        `yaml:"prefix"`
		PoolSize       int           `yaml:"pool_size" default:"10"`
		OpTimeout      time.Duration `yaml:"op_timeout" default:"5s"`
		RequireOnStart bool          `yaml:"require_on_start"`
		MemoryMaxKeys  int           `yaml:"memory_max_keys" default:"10000"`
		MemoryCleanup  time.Duration `yaml:"memory_cleanup" default:"5m"`
	} `yaml:"redis"`
	Webhook struct {
		DefaultStrategy string        `yaml:"default_strategy" default:"vip"`
		LegacyPath      string        `yaml:"legacy_path" default:"tradingview"`
		Secret          string        `yaml:"secret"`
		AllowedIPs      []string      `yaml:"allowed_ips"`
		ProcessTimeout  time.Duration `yaml:"process_timeout" default:"30s"`
		ActivateOnStart bool          `yaml:"activate_on_start"`
		RateLimit       struct {
			Backend string        `yaml:"backend" default:"memory"`
			Limit   int           `yaml:"limit" default:"30"`
			Window  time.Duration `yaml:"window" default:"60s"`
		} `yaml:"rate_limit"`
	} `yaml:"webhook"`
	Correlator struct {
		DefaultDirection string `yaml:"default_direction" default:"BUY"`
	} `yaml:"correlator"`
	Telegram struct {
		Token               string        `yaml:"token"`
		AdminChatID         int64         `yaml:"admin_chat_id"`
		DefaultDestinations []string      `yaml:"default_destinations"`
		AdminBot            bool          `yaml:"admin_bot" default:"true"`
		SessionTimeout      time.Duration `yaml:"session_timeout" default:"2m"`
		PollTimeout         int           `yaml:"poll_timeout" default:"30"`
		RequestTimeout      time.Duration `yaml:"request_timeout" default:"60s"`
		PanelStrategies     []string      `yaml:"panel_strategies"`
	} `yaml:"telegram"`
	Delivery struct {
		MinInterval        time.Duration `yaml:"min_interval" default:"1s"`
		DefaultRetryAfter  time.Duration `yaml:"default_retry_after" default:"5s"`
		MaxRetryAfter      time.Duration `yaml:"max_retry_after" default:"0s"`
		MaxThrottleRetries int           `yaml:"max_throttle_retries" default:"10"`
		SendTimeout        time.Duration `yaml:"send_timeout" default:"10s"`
		DeadLetterKey      string        `yaml:"dead_letter_key" default:"delivery:dead_letters"`
		DeadLetterMax      int64         `yaml:"dead_letter_max" default:"500"`
	} `yaml:"delivery"`
	Chart struct {
		Enabled     bool          `yaml:"enabled" default:"true"`
		Provider    string        `yaml:"provider" default:"yahoo"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
		BaseURL     string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		CacheTTL    time.Duration `yaml:"cache_ttl" default:"30s"`
		SharedCache bool          `yaml:"shared_cache"`
		Width       int           `yaml:"width" default:"600"`
		Height      int           `yaml:"height" default:"400"`
		TapeSize    int           `yaml:"tape_size" default:"120"`
		DefaultSpan time.Duration `yaml:"default_span" default:"1m"`
	} `yaml:"chart"`
	Finnhub struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"finnhub"`
	Forwarding struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"forwarding"`
	Executor struct {
		URL        string        `yaml:"url"`
		Secret     string        `yaml:"secret"`
		Strategies []string      `yaml:"strategies"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"executor"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"signals.correlated"`
		RequiredAcks int           `yaml:"required_acks" default:"1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
		Async        bool          `yaml:"async"`
		BatchSize    int           `yaml:"batch_size" default:"1"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"10ms"`
	} `yaml:"kafka"`
	Journal struct {
		Backend    string `yaml:"backend" default:"none"`
		SQLitePath string `yaml:"sqlite_path" default:"signals.db"`
	} `yaml:"journal"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"default"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert" default:"true"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	} `yaml:"clickhouse"`
}

var strategyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Validation runs once, after the overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := get("TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = SplitList(v)
	}
	if v, ok := get("REDIS_URL"); ok {
		c.Redis.URL = v
	}
	if v, ok := get("TELEGRAM_BOT_TOKEN"); ok {
		c.Telegram.Token = v
	}
	if v, ok := get("ADMIN_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ADMIN_CHAT_ID: %w", err)
		}
		c.Telegram.AdminChatID = id
	}
	if v, ok := get("TELEGRAM_CHANNEL_IDS"); ok {
		c.Telegram.DefaultDestinations = SplitList(v)
	}
	if v, ok := get("DEFAULT_STRATEGY"); ok {
		c.Webhook.DefaultStrategy = strings.ToLower(v)
	}
	if v, ok := get("WEBHOOK_SECRET"); ok {
		c.Webhook.Secret = v
	}
	if v, ok := get("FORWARDING_URL"); ok {
		c.Forwarding.URL = v
	}
	if v, ok := get("EXECUTOR_URL"); ok {
		c.Executor.URL = strings.TrimRight(v, "/")
	}
	if v, ok := get("EXECUTOR_SECRET"); ok {
		c.Executor.Secret = v
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = SplitList(v)
		c.Kafka.Enabled = true
	}
	if v, ok := get("FINNHUB_API_KEY"); ok {
		c.Finnhub.APIKey = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, err := util.ParseIPNets(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}
	if !ValidStrategy(c.Webhook.DefaultStrategy) {
		return fmt.Errorf("webhook.default_strategy %q is not a valid strategy name", c.Webhook.DefaultStrategy)
	}
	if c.Webhook.RateLimit.Limit <= 0 {
		return fmt.Errorf("webhook.rate_limit.limit must be positive")
	}
	if c.Webhook.RateLimit.Window <= 0 {
		return fmt.Errorf("webhook.rate_limit.window must be positive")
	}
	switch c.Webhook.RateLimit.Backend {
	case "memory", "store":
	default:
		return fmt.Errorf("webhook.rate_limit.backend must be 'memory' or 'store', got '%s'", c.Webhook.RateLimit.Backend)
	}
	switch c.Redis.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("redis.backend must be 'redis' or 'memory', got '%s'", c.Redis.Backend)
	}
	switch c.Journal.Backend {
	case "none", "clickhouse", "sqlite":
	default:
		return fmt.Errorf("journal.backend must be 'none', 'clickhouse' or 'sqlite', got '%s'", c.Journal.Backend)
	}
	switch c.Chart.Provider {
	case "yahoo", "tape":
	default:
		return fmt.Errorf("chart.provider must be 'yahoo' or 'tape', got '%s'", c.Chart.Provider)
	}
	if c.Chart.Provider == "tape" && c.Chart.Enabled && c.Finnhub.APIKey == "" {
		return fmt.Errorf("chart.provider 'tape' requires finnhub.api_key")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Delivery.MinInterval < 0 {
		return fmt.Errorf("delivery.min_interval cannot be negative")
	}
	for _, s := range c.Executor.Strategies {
		if !ValidStrategy(s) {
			return fmt.Errorf("executor.strategies: invalid strategy %q", s)
		}
	}
	return nil
}

// ValidStrategy reports whether s is an acceptable tenant name.
func ValidStrategy(s string) bool {
	return strategyPattern.MatchString(s)
}

// SplitList splits a comma separated list and drops empty items.
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
