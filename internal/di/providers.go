package di

import (
	"context"
	"fmt"
	"os"
	"time"

	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/internal/handler/api"
	"github.com/mack4pf/telegram-automated-signal/internal/handler/bot"
	"github.com/mack4pf/telegram-automated-signal/internal/middleware"
	"github.com/mack4pf/telegram-automated-signal/internal/repository"
	svccache "github.com/mack4pf/telegram-automated-signal/internal/service/cache"
	"github.com/mack4pf/telegram-automated-signal/internal/service/chart"
	"github.com/mack4pf/telegram-automated-signal/internal/service/finnhub"
	"github.com/mack4pf/telegram-automated-signal/internal/service/forwarding"
	"github.com/mack4pf/telegram-automated-signal/internal/service/ratelimit"
	"github.com/mack4pf/telegram-automated-signal/internal/service/telegram"
	"github.com/mack4pf/telegram-automated-signal/internal/usecase"
	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
	pkgch "github.com/mack4pf/telegram-automated-signal/pkg/clickhouse"
	"github.com/mack4pf/telegram-automated-signal/pkg/config"
	xhttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	pkgkafka "github.com/mack4pf/telegram-automated-signal/pkg/kafka"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
	"github.com/mack4pf/telegram-automated-signal/pkg/metrics"
	"github.com/mack4pf/telegram-automated-signal/pkg/queue"
	"github.com/mack4pf/telegram-automated-signal/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideStore creates the shared key/value store.
func ProvideStore(cfg *config.Config, lgr *logger.Logger) (cache.Service, error) {
	if cfg.Redis.Backend == "memory" {
		lgr.Warn("using in-process store, state is lost on restart")
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Redis.MemoryMaxKeys),
			cache.WithMemoryCleanup(cfg.Redis.MemoryCleanup),
		), nil
	}

	opts := []cache.RedisOption{
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
		cache.WithRedisOpTimeout(cfg.Redis.OpTimeout),
		cache.WithRedisStrictPing(cfg.Redis.RequireOnStart),
	}
	if cfg.Redis.URL != "" {
		opts = append(opts, cache.WithRedisURL(cfg.Redis.URL))
	}
	rc, err := cache.NewRedisCache(opts...)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideStateStore wraps the store with the relay's key layout.
func ProvideStateStore(cfg *config.Config, store cache.Service) *repository.StateStore {
	return repository.NewStateStore(store, cfg.Webhook.DefaultStrategy)
}

// ProvideLimiter picks the per-process or the shared rate limiter.
func ProvideLimiter(cfg *config.Config, store cache.Service) ratelimit.Limiter {
	rl := cfg.Webhook.RateLimit
	if rl.Backend == "store" {
		return ratelimit.NewStoreWindow(store, rl.Limit, rl.Window)
	}
	return ratelimit.NewFixedWindow(rl.Limit, rl.Window)
}

// ProvideAdmission creates the webhook admission gate.
func ProvideAdmission(cfg *config.Config, lgr *logger.Logger, limiter ratelimit.Limiter, rec *metrics.Recorder) *middleware.Admission {
	return middleware.NewAdmission(lgr, limiter, rec, middleware.WithAdmissionConfig(middleware.AdmissionConfig{
		DefaultStrategy: cfg.Webhook.DefaultStrategy,
		LegacyPath:      cfg.Webhook.LegacyPath,
		Secret:          cfg.Webhook.Secret,
		AllowedIPs:      cfg.Webhook.AllowedIPs,
	}))
}

// ProvideTelegramBot connects to the Bot API.
func ProvideTelegramBot(cfg *config.Config) (telegram.BotAPI, error) {
	b, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ProvideDeliveryQueue creates the outbound queue with Redis dead letters.
func ProvideDeliveryQueue(cfg *config.Config, lgr *logger.Logger, tg telegram.BotAPI, store cache.Service, rec *metrics.Recorder) *queue.DeliveryQueue {
	d := cfg.Delivery
	return queue.NewDeliveryQueue(lgr.With(logger.String("component", "delivery")), telegram.NewSender(tg),
		queue.WithConfig(queue.QueueConfig{
			MinInterval:        d.MinInterval,
			DefaultRetryAfter:  d.DefaultRetryAfter,
			MaxRetryAfter:      d.MaxRetryAfter,
			MaxThrottleRetries: d.MaxThrottleRetries,
			SendTimeout:        d.SendTimeout,
		}),
		queue.WithDeadLetters(queue.NewRedisDeadLetters(store,
			queue.WithDeadLetterKey(d.DeadLetterKey),
			queue.WithDeadLetterMax(d.DeadLetterMax),
		)),
		queue.WithObserver(rec),
	)
}

// ProvideRegistry creates the strategy to destination registry.
func ProvideRegistry(cfg *config.Config, state *repository.StateStore, lgr *logger.Logger) *usecase.DestinationRegistry {
	return usecase.NewDestinationRegistry(state, lgr, cfg.Webhook.DefaultStrategy, cfg.Telegram.DefaultDestinations)
}

// ProvideCorrelator creates the opening/result correlator.
func ProvideCorrelator(cfg *config.Config, state *repository.StateStore, lgr *logger.Logger) *usecase.Correlator {
	return usecase.NewCorrelator(state, lgr, cfg.Correlator.DefaultDirection)
}

// ProvideBroadcaster fans messages out to the delivery queue.
func ProvideBroadcaster(registry *usecase.DestinationRegistry, q *queue.DeliveryQueue, lgr *logger.Logger) *usecase.Broadcaster {
	return usecase.NewBroadcaster(registry, q, lgr)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config, lgr *logger.Logger) (*pkgkafka.Producer, error) {
	k := cfg.Kafka
	if !k.Enabled {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRequiredAcks(k.RequiredAcks),
		pkgkafka.WithMaxAttempts(k.MaxAttempts),
		pkgkafka.WithTimeouts(k.WriteTimeout, k.WriteTimeout),
		pkgkafka.WithBatching(k.BatchSize, k.BatchBytes, k.BatchTimeout),
		pkgkafka.WithAsync(k.Async, func(n int, err error) {
			if err != nil {
				lgr.Warn("kafka async write failed", logger.Int("messages", n), logger.Error(err))
			}
		}),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideJournal opens the configured signal journal and prepares its schema.
func ProvideJournal(cfg *config.Config) (domrepo.Journal, error) {
	var j domrepo.Journal
	switch cfg.Journal.Backend {
	case "clickhouse":
		ch := cfg.ClickHouse
		client, err := pkgch.NewClient(
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithHTTP(ch.UseHTTP),
			pkgch.WithAsyncInsert(ch.AsyncInsert, false),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout, ch.WriteTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		j = repository.NewClickHouseJournal(client)
	case "sqlite":
		sj, err := repository.NewSQLiteJournal(cfg.Journal.SQLitePath)
		if err != nil {
			return nil, err
		}
		j = sj
	default:
		return repository.NopJournal{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Init(ctx); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return j, nil
}

// ProvidePriceTape creates the live price tape, or nil without Finnhub
// credentials.
func ProvidePriceTape(cfg *config.Config, lgr *logger.Logger, rec *metrics.Recorder) *chart.PriceTape {
	fh := cfg.Finnhub
	if fh.APIKey == "" || len(fh.Symbols) == 0 {
		return nil
	}
	l := lgr.With(logger.String("component", "finnhub"))
	stream := finnhub.New(fh.APIKey, fh.WebSocketURL, fh.Symbols, fh.ReconnectDelay, fh.PingInterval, l)
	return chart.NewPriceTape(stream, cfg.Chart.TapeSize, rec, l)
}

// ProvideRenderer creates the result chart renderer, or nil when charts are
// disabled.
func ProvideRenderer(cfg *config.Config, store cache.Service, tape *chart.PriceTape, lgr *logger.Logger) domrepo.Renderer {
	c := cfg.Chart
	if !c.Enabled {
		return nil
	}

	var bytesCache svccache.BytesCache = svccache.NewTTLCache()
	if c.SharedCache {
		bytesCache = svccache.NewStoreCache(store, "chart")
	}
	client := xhttp.NewClient(xhttp.WithTimeout(c.Timeout), xhttp.WithUserAgent("Mozilla/5.0 (signal-relay)"))
	var history domrepo.HistoryProvider = chart.NewYahooProvider(client, c.BaseURL, bytesCache, c.CacheTTL, lgr)
	if c.Provider == "tape" && tape != nil {
		history = chart.Chain{tape, history}
	}

	return chart.NewRenderer(history, lgr,
		chart.WithSize(c.Width, c.Height),
		chart.WithDefaultSpan(c.DefaultSpan),
	)
}

// ProvideForwarder builds the fan-out over every configured secondary target.
func ProvideForwarder(cfg *config.Config, state *repository.StateStore, producer *pkgkafka.Producer, lgr *logger.Logger, rec *metrics.Recorder) *forwarding.Fanout {
	var targets []domrepo.Forwarder
	if cfg.Forwarding.URL != "" {
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Forwarding.Timeout), xhttp.WithMaxBody(64<<10))
		targets = append(targets, forwarding.NewHTTPForwarder(client, cfg.Forwarding.URL))
	}
	if cfg.Executor.URL != "" {
		strategies := cfg.Executor.Strategies
		if len(strategies) == 0 {
			strategies = []string{cfg.Webhook.DefaultStrategy}
		}
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Executor.Timeout), xhttp.WithMaxBody(64<<10))
		targets = append(targets, forwarding.NewExecutor(client, cfg.Executor.URL, cfg.Executor.Secret, strategies, state, lgr))
	}
	if producer != nil {
		targets = append(targets, forwarding.NewKafkaForwarder(producer, cfg.Kafka.Topic))
	}
	return forwarding.NewFanout(targets, cfg.Forwarding.Timeout, rec, lgr)
}

// ProvidePipeline assembles the post-acknowledgment pipeline.
func ProvidePipeline(
	cfg *config.Config,
	state *repository.StateStore,
	correlator *usecase.Correlator,
	broadcaster *usecase.Broadcaster,
	renderer domrepo.Renderer,
	fanout *forwarding.Fanout,
	journal domrepo.Journal,
	rec *metrics.Recorder,
	lgr *logger.Logger,
) *usecase.SignalPipeline {
	opts := []usecase.PipelineOption{
		usecase.WithPipelineConfig(usecase.PipelineConfig{
			ProcessTimeout: cfg.Webhook.ProcessTimeout,
			ChartTimeout:   cfg.Chart.Timeout,
			JournalTimeout: 5 * time.Second,
		}),
		usecase.WithJournal(journal),
		usecase.WithPipelineMetrics(rec),
	}
	if renderer != nil {
		opts = append(opts, usecase.WithRenderer(renderer))
	}
	if fanout.Len() > 0 {
		opts = append(opts, usecase.WithForwarder(fanout))
	}
	return usecase.NewSignalPipeline(state, correlator, broadcaster, lgr, opts...)
}

// ProvideWebhookHandler creates the echo routes.
func ProvideWebhookHandler(lgr *logger.Logger, admission *middleware.Admission, pipeline *usecase.SignalPipeline, state *repository.StateStore) *api.WebhookEchoHandler {
	return api.NewWebhookEchoHandler(lgr, admission, pipeline, state)
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, h *api.WebhookEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(lgr, h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS, cfg.Server.CORSOrigins...),
		xhttp.WithTrustedProxies(cfg.Server.TrustedProxies...),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideAdminBot creates the Telegram control surface, or nil when off.
func ProvideAdminBot(cfg *config.Config, tg telegram.BotAPI, registry *usecase.DestinationRegistry, state *repository.StateStore, journal domrepo.Journal, lgr *logger.Logger) *bot.AdminBot {
	if !cfg.Telegram.AdminBot {
		return nil
	}
	return bot.NewAdminBot(tg, registry, state, journal, lgr.With(logger.String("component", "admin_bot")), bot.Config{
		AdminChatID:     cfg.Telegram.AdminChatID,
		PollTimeout:     cfg.Telegram.PollTimeout,
		SessionTimeout:  cfg.Telegram.SessionTimeout,
		PanelStrategies: cfg.Telegram.PanelStrategies,
	})
}

// ProvideApp registers every component with the lifecycle and applies the
// startup activation flag.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	httpServer *xhttp.Server,
	store cache.Service,
	state *repository.StateStore,
	pipeline *usecase.SignalPipeline,
	q *queue.DeliveryQueue,
	journal domrepo.Journal,
	producer *pkgkafka.Producer,
	tape *chart.PriceTape,
	adminBot *bot.AdminBot,
) (*server.App, error) {
	if cfg.Webhook.ActivateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.OpTimeout)
		defer cancel()
		if err := state.SetSystemActive(ctx, true); err != nil {
			return nil, fmt.Errorf("activate on start: %w", err)
		}
	}

	opts := []server.Option{
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		server.WithCloser("store", store.Close),
		server.WithCloser("journal", journal.Close),
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka", producer.Close))
		if cfg.Log.CollectTopic != "" {
			host, _ := os.Hostname()
			lgr.AddCollector(&logger.CollectionConfig{
				TimeInterval: cfg.Log.CollectEvery,
				Topic:        cfg.Log.CollectTopic,
				Source:       host,
				Publisher:    producer,
			})
			opts = append(opts, server.WithCloser("log_collector", func() error {
				lgr.RemoveCollector()
				return nil
			}))
		}
	}

	opts = append(opts,
		server.WithDrainer("pipeline", pipeline.Close),
		server.WithDrainer("delivery_queue", q.Close),
	)
	if tape != nil {
		opts = append(opts,
			server.WithWorker("price_tape", tape.Run),
			server.WithCloser("price_tape", tape.Close),
		)
	}
	if adminBot != nil {
		opts = append(opts, server.WithWorker("admin_bot", func(ctx context.Context) error {
			adminBot.Run(ctx)
			return nil
		}))
	}

	return server.New(lgr, httpServer, opts...), nil
}
