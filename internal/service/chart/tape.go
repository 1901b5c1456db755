package chart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	drepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

var errStreamClosed = errors.New("price stream closed")

// PriceTape keeps the last N ticks per symbol from a live stream and serves
// them as chart history.
type PriceTape struct {
	stream  drepo.MarketStream
	metrics drepo.Metrics
	logger  *logger.Logger
	size    int

	mu     sync.RWMutex
	series map[string][]models.PricePoint
}

func NewPriceTape(stream drepo.MarketStream, size int, metrics drepo.Metrics, lgr *logger.Logger) *PriceTape {
	if size <= 0 {
		size = 120
	}
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	return &PriceTape{
		stream:  stream,
		metrics: metrics,
		logger:  lgr,
		size:    size,
		series:  make(map[string][]models.PricePoint),
	}
}

// Add appends a tick, dropping the oldest past the tape size.
func (t *PriceTape) Add(tick *models.Tick) {
	if tick == nil || tick.Price <= 0 {
		return
	}
	key := TapeKey(tick.Symbol)

	t.mu.Lock()
	s := append(t.series[key], models.PricePoint{At: tick.Timestamp, Price: tick.Price})
	if len(s) > t.size {
		s = append(s[:0:0], s[len(s)-t.size:]...)
	}
	t.series[key] = s
	t.mu.Unlock()

	t.metrics.RecordLastPrice(key, tick.Price)
}

// History implements HistoryProvider. The span is measured back from the
// newest tick.
func (t *PriceTape) History(_ context.Context, ticker string, span time.Duration) ([]models.PricePoint, error) {
	t.mu.RLock()
	s := t.series[TapeKey(ticker)]
	out := make([]models.PricePoint, len(s))
	copy(out, s)
	t.mu.RUnlock()

	return trimSpan(out, span), nil
}

// Run connects the stream and feeds the tape until ctx is done. Stream errors
// trigger a reconnect.
func (t *PriceTape) Run(ctx context.Context) error {
	err := t.stream.Connect(ctx)
	if err == nil {
		err = t.stream.Subscribe(ctx)
	}
	for err != nil {
		if ctx.Err() != nil {
			return nil
		}
		t.logger.Warn("price stream unavailable, retrying", logger.Error(err))
		err = t.stream.Reconnect(ctx)
	}

	for {
		ticks, errs := t.stream.Read(ctx)
		if err := t.consume(ctx, ticks, errs); err != nil {
			t.metrics.RecordError("stream")
			t.logger.Warn("price stream interrupted", logger.Error(err))
			if rerr := t.stream.Reconnect(ctx); rerr != nil {
				if ctx.Err() != nil {
					return nil
				}
				t.logger.Warn("price stream reconnect failed", logger.Error(rerr))
			}
			continue
		}
		return nil
	}
}

func (t *PriceTape) consume(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) error {
	closed := func() error {
		if ctx.Err() != nil {
			return nil
		}
		return errStreamClosed
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				if ticks == nil {
					return closed()
				}
				continue
			}
			if err != nil {
				return err
			}
		case tick, ok := <-ticks:
			if !ok {
				ticks = nil
				if errs == nil {
					return closed()
				}
				continue
			}
			t.Add(tick)
		}
	}
}

// Close stops the stream.
func (t *PriceTape) Close() error {
	return t.stream.Close()
}

// Connected reports whether the live stream is up.
func (t *PriceTape) Connected() bool {
	return t.stream.IsConnected()
}
