package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	applogger "github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

type worker struct {
	name string
	run  func(ctx context.Context) error
}

type drainer struct {
	name  string
	close func(ctx context.Context) error
}

type closer struct {
	name  string
	close func() error
}

// Option registers a component with the App.
type Option func(*App)

// WithWorker adds a background loop. run must return once ctx is cancelled.
func WithWorker(name string, run func(ctx context.Context) error) Option {
	return func(a *App) {
		a.workers = append(a.workers, worker{name: name, run: run})
	}
}

// WithDrainer adds a component that finishes in-flight work on shutdown.
// Drainers run in registration order, after the HTTP server stopped.
func WithDrainer(name string, close func(ctx context.Context) error) Option {
	return func(a *App) {
		a.drainers = append(a.drainers, drainer{name: name, close: close})
	}
}

// WithCloser adds an infrastructure client closed last, in reverse
// registration order.
func WithCloser(name string, close func() error) Option {
	return func(a *App) {
		a.closers = append(a.closers, closer{name: name, close: close})
	}
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	logger          *applogger.Logger
	httpServer      *xhttp.Server
	workers         []worker
	drainers        []drainer
	closers         []closer
	shutdownTimeout time.Duration

	wg sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(lgr *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{
		logger:          lgr,
		httpServer:      httpServer,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	for _, w := range a.workers {
		a.wg.Add(1)
		go func(w worker) {
			defer a.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("worker panic", applogger.String("worker", w.name), applogger.Any("panic", r))
				}
			}()
			if err := w.run(workCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("worker stopped", applogger.String("worker", w.name), applogger.Error(err))
			}
		}(w)
		a.logger.Info("worker started", applogger.String("worker", w.name))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			return errors.Join(err, a.shutdown(cancelWork))
		}
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown(cancelWork)
}

// shutdown stops intake first, then drains, then releases clients.
func (a *App) shutdown(cancelWork context.CancelFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for _, d := range a.drainers {
		if err := d.close(ctx); err != nil {
			a.logger.Warn("drain error", applogger.String("component", d.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	cancelWork()
	a.wg.Wait()

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close error", applogger.String("component", c.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
