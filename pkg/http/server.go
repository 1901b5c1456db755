package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mack4pf/telegram-automated-signal/pkg/http/middleware"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
	CORSOrigins     []string
	TrustedProxies  []string
	MetricsPath     string
	SlowThreshold   time.Duration
}

// Server wraps Echo HTTP server.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	logger *logger.Logger
}

// NewServer creates a new HTTP server with Echo.
func NewServer(lgr *logger.Logger, handler Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            3000,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
		MetricsPath:     "/metrics",
		SlowThreshold:   2 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	extractor, err := ClientIPExtractor(cfg.TrustedProxies)
	if err != nil {
		lgr.Warn("trusted proxies ignored, using socket address", logger.Error(err))
		extractor = echo.ExtractIPDirect()
	}
	e.IPExtractor = extractor

	e.Use(middleware.Recover(lgr))
	e.Use(middleware.RequestLogging(lgr))
	e.Use(middleware.Metrics(lgr, cfg.SlowThreshold))

	if cfg.CORS {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderOrigin,
				echo.HeaderContentType,
				echo.HeaderAccept,
				"X-Webhook-Secret",
			},
		}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}

	if cfg.MetricsPath != "" {
		e.GET(cfg.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	return &Server{
		echo:   e,
		config: cfg,
		logger: lgr,
	}
}

// Start binds the listener and serves in the background. Bind errors are
// returned to the caller instead of surfacing later in the log.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	go func() {
		s.logger.Info("http server listening", logger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", logger.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.echo.Listener == nil {
		return ""
	}
	return s.echo.Listener.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info("http server stopped gracefully")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// WithHost sets server host.
func WithHost(host string) ServerOption {
	return func(c *ServerConfig) {
		c.Host = host
	}
}

// WithPort sets server port.
func WithPort(port int) ServerOption {
	return func(c *ServerConfig) {
		c.Port = port
	}
}

// WithTimeouts sets read/write timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithCORS enables CORS for the given origins. No origins means any.
func WithCORS(enabled bool, origins ...string) ServerOption {
	return func(c *ServerConfig) {
		c.CORS = enabled
		c.CORSOrigins = origins
	}
}

// WithTrustedProxies lets X-Forwarded-For name the caller when the request
// came through one of these IPs or CIDRs.
func WithTrustedProxies(proxies ...string) ServerOption {
	return func(c *ServerConfig) {
		c.TrustedProxies = proxies
	}
}

// WithMetricsPath sets the scrape path. Empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(c *ServerConfig) {
		c.MetricsPath = path
	}
}
