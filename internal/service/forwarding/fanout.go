package forwarding

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

// Fanout runs every forwarder concurrently, each under its own timeout.
// One failing target never blocks the others.
type Fanout struct {
	targets []domrepo.Forwarder
	timeout time.Duration
	metrics domrepo.Metrics
	logger  *logger.Logger
}

func NewFanout(targets []domrepo.Forwarder, timeout time.Duration, metrics domrepo.Metrics, lgr *logger.Logger) *Fanout {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &Fanout{targets: targets, timeout: timeout, metrics: metrics, logger: lgr}
}

func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of configured targets.
func (f *Fanout) Len() int { return len(f.targets) }

// Forward returns the joined errors of the failed targets.
func (f *Fanout) Forward(ctx context.Context, alert *models.Alert, corr *models.Correlation) error {
	if len(f.targets) == 0 {
		return nil
	}

	errs := make([]error, len(f.targets))
	var wg sync.WaitGroup
	for i, t := range f.targets {
		wg.Add(1)
		go func(i int, t domrepo.Forwarder) {
			defer wg.Done()
			errs[i] = f.forwardOne(ctx, t, alert, corr)
		}(i, t)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Fanout) forwardOne(ctx context.Context, t domrepo.Forwarder, alert *models.Alert, corr *models.Correlation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", t.Name(), r)
		}
		f.metrics.RecordForward(t.Name(), err == nil)
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	if err = t.Forward(ctx, alert, corr); err != nil {
		f.logger.Warn("forward target failed",
			logger.String("target", t.Name()),
			logger.String("strategy", corr.Strategy),
			logger.String("ticker", corr.Ticker),
			logger.Error(err))
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	return nil
}
