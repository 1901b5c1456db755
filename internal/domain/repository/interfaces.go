package repository

import (
	"context"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
)

// StateStore is the domain view of the shared key/value store.
type StateStore interface {
	SystemActive(ctx context.Context) (bool, error)
	SetSystemActive(ctx context.Context, active bool) error

	LastSignal(ctx context.Context, strategy, ticker string) (string, bool, error)
	SetLastSignal(ctx context.Context, strategy, ticker, signal string) error
	CorrelationKey(strategy, ticker string) string

	ExecutorSignalID(ctx context.Context, strategy, ticker string) (string, bool, error)
	SetExecutorSignalID(ctx context.Context, strategy, ticker, id string) error

	AddDestination(ctx context.Context, strategy, destination string) error
	RemoveDestination(ctx context.Context, strategy, destination string) error
	Destinations(ctx context.Context, strategy string) ([]string, error)
	Strategies(ctx context.Context) (map[string]int64, error)

	Healthy(ctx context.Context) bool
}

// Deliverer accepts outbound messages. Both calls return immediately.
type Deliverer interface {
	EnqueueText(destination, text string) error
	EnqueueImage(destination string, image []byte, caption string) error
}

// Journal stores correlated signals for later analysis.
type Journal interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, ev *models.SignalEvent) error
	Recent(ctx context.Context, strategy string, limit int) ([]*models.SignalEvent, error)
	Close() error
}

// Forwarder relays a correlation to a secondary system.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, alert *models.Alert, corr *models.Correlation) error
}

// RenderRequest describes the chart wanted for a result alert.
type RenderRequest struct {
	Win       bool
	Price     float64
	Direction string
	Span      time.Duration
}

// Renderer produces a PNG chart for a result alert.
type Renderer interface {
	Render(ctx context.Context, ticker string, req RenderRequest) ([]byte, error)
}

// HistoryProvider returns recent prices for a ticker, oldest first.
type HistoryProvider interface {
	History(ctx context.Context, ticker string, span time.Duration) ([]models.PricePoint, error)
}

// MarketStream is a live trade feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Metrics interface {
	RecordAlert(strategy, kind string)
	RecordRejection(reason string)
	RecordForward(target string, ok bool)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordAlert(string, string) {}
func (NopMetrics) RecordRejection(string) {}
func (NopMetrics) RecordForward(string, bool) {}
func (NopMetrics) RecordError(string) {}
func (NopMetrics) RecordLastPrice(string, float64) {}
func (NopMetrics) RecordLatency(string, float64) {}
