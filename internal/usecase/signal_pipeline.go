package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

var ErrPipelineClosed = errors.New("pipeline: closed")

// PipelineConfig contains the pipeline timeouts.
type PipelineConfig struct {
	ProcessTimeout time.Duration
	ChartTimeout   time.Duration
	JournalTimeout time.Duration
}

type PipelineOption func(*SignalPipeline)

func WithPipelineConfig(cfg PipelineConfig) PipelineOption {
	return func(p *SignalPipeline) {
		p.cfg = cfg
	}
}

// WithRenderer enables charts on result alerts.
func WithRenderer(r domrepo.Renderer) PipelineOption {
	return func(p *SignalPipeline) {
		p.renderer = r
	}
}

// WithForwarder sets the secondary-system relay.
func WithForwarder(f domrepo.Forwarder) PipelineOption {
	return func(p *SignalPipeline) {
		p.forwarder = f
	}
}

// WithJournal records each correlation.
func WithJournal(j domrepo.Journal) PipelineOption {
	return func(p *SignalPipeline) {
		p.journal = j
	}
}

func WithPipelineMetrics(m domrepo.Metrics) PipelineOption {
	return func(p *SignalPipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// SignalPipeline runs admitted alerts after they were acknowledged: activity
// check, correlation, formatting, broadcast, forwarding and journaling.
type SignalPipeline struct {
	store       domrepo.StateStore
	correlator  *Correlator
	broadcaster *Broadcaster
	renderer    domrepo.Renderer
	forwarder   domrepo.Forwarder
	journal     domrepo.Journal
	metrics     domrepo.Metrics
	logger      *logger.Logger
	cfg         PipelineConfig

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewSignalPipeline(
	store domrepo.StateStore,
	correlator *Correlator,
	broadcaster *Broadcaster,
	lgr *logger.Logger,
	opts ...PipelineOption,
) *SignalPipeline {
	p := &SignalPipeline{
		store:       store,
		correlator:  correlator,
		broadcaster: broadcaster,
		logger:      lgr,
		metrics:     domrepo.NopMetrics{},
		cfg: PipelineConfig{
			ProcessTimeout: 30 * time.Second,
			ChartTimeout:   10 * time.Second,
			JournalTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch processes the alert on its own goroutine. Panics and errors stay
// inside; the caller has already been answered.
func (p *SignalPipeline) Dispatch(alert *models.Alert) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("pipeline closed, alert discarded",
			logger.String("strategy", alert.Strategy), logger.String("ticker", alert.Ticker))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.metrics.RecordError("pipeline_panic")
				p.logger.Error("pipeline panic",
					logger.String("strategy", alert.Strategy),
					logger.String("ticker", alert.Ticker),
					logger.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProcessTimeout)
		defer cancel()
		if err := p.Process(ctx, alert); err != nil {
			p.logger.Warn("alert processing incomplete",
				logger.String("strategy", alert.Strategy),
				logger.String("ticker", alert.Ticker),
				logger.Error(err))
		}
	}()
}

// Process runs the pipeline synchronously. Only a broadcast with no
// destinations is reported as an error.
func (p *SignalPipeline) Process(ctx context.Context, alert *models.Alert) error {
	start := time.Now()
	defer func() {
		p.metrics.RecordLatency("pipeline", time.Since(start).Seconds())
	}()

	active, err := p.store.SystemActive(ctx)
	if err != nil {
		p.logger.Warn("activity flag unreadable, assuming active", logger.Error(err))
	}
	if !active {
		p.logger.Info("system inactive, alert ignored",
			logger.String("strategy", alert.Strategy), logger.String("ticker", alert.Ticker))
		return nil
	}

	corr := p.correlator.Correlate(ctx, alert)
	p.metrics.RecordAlert(corr.Strategy, string(corr.Kind))
	if alert.Price != nil {
		p.metrics.RecordLastPrice(corr.Ticker, alert.Price.InexactFloat64())
	}

	msg := Message{Text: FormatMessage(corr)}
	if corr.IsResult() {
		if img := p.renderChart(ctx, corr); len(img) > 0 {
			msg = Message{Image: img, Caption: msg.Text}
		}
	}

	enqueued, ok := p.broadcaster.Broadcast(ctx, corr.Strategy, msg)
	if !ok {
		p.logger.Warn("no destinations for strategy",
			logger.String("strategy", corr.Strategy), logger.String("ticker", corr.Ticker))
	} else {
		p.logger.Info("signal broadcast",
			logger.String("strategy", corr.Strategy),
			logger.String("ticker", corr.Ticker),
			logger.String("kind", string(corr.Kind)),
			logger.Int("destinations", enqueued))
	}

	if p.forwarder != nil {
		if ferr := p.forwarder.Forward(ctx, alert, corr); ferr != nil {
			p.logger.Warn("forwarding failed",
				logger.String("strategy", corr.Strategy),
				logger.String("ticker", corr.Ticker),
				logger.Error(ferr))
		}
	}

	p.record(corr, enqueued)

	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNoDestinations, corr.Strategy)
	}
	return nil
}

func (p *SignalPipeline) renderChart(ctx context.Context, corr *models.Correlation) []byte {
	if p.renderer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ChartTimeout)
	defer cancel()

	req := domrepo.RenderRequest{
		Win:       corr.Outcome == models.OutcomeWin,
		Direction: corr.Direction,
		Span:      corr.Expiry,
	}
	if req.Span <= 0 {
		req.Span = domrepo.ParseTimeframe(corr.Timeframe, "").Duration()
	}
	if corr.Price != nil {
		req.Price = corr.Price.InexactFloat64()
	}

	img, err := p.renderer.Render(ctx, corr.Ticker, req)
	if err != nil {
		p.metrics.RecordError("chart")
		p.logger.Warn("chart unavailable, sending text",
			logger.String("ticker", corr.Ticker), logger.Error(err))
		return nil
	}
	return img
}

func (p *SignalPipeline) record(corr *models.Correlation, destinations int) {
	if p.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.JournalTimeout)
	defer cancel()
	if err := p.journal.Record(ctx, models.NewSignalEvent(corr, destinations)); err != nil {
		p.metrics.RecordError("journal")
		p.logger.Warn("journal write failed", logger.String("ticker", corr.Ticker), logger.Error(err))
	}
}

// Wait blocks until every dispatched alert has finished.
func (p *SignalPipeline) Wait() {
	p.wg.Wait()
}

// Close rejects new alerts and waits for in-flight ones or ctx.
func (p *SignalPipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("signal pipeline stopped gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrPipelineClosed, ctx.Err())
	}
}
