package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

var (
	winTokens  = []string{"WIN", "WON"}
	lossTokens = []string{"LOSS", "LOST"}
)

// IsResultSignal reports whether the signal text closes a trade.
func IsResultSignal(signal string) bool {
	return util.ContainsAnyFold(signal, winTokens...) || util.ContainsAnyFold(signal, lossTokens...)
}

// OutcomeOf maps a result signal to WIN, LOSS or RESULT.
func OutcomeOf(signal string) models.Outcome {
	switch {
	case util.ContainsAnyFold(signal, winTokens...):
		return models.OutcomeWin
	case util.ContainsAnyFold(signal, lossTokens...):
		return models.OutcomeLoss
	default:
		return models.OutcomeUnknown
	}
}

// Correlator pairs result alerts with the last opening alert of the same
// (strategy, ticker). The read on the result path and the write on the
// opening path are independent store calls; concurrent alerts for one key
// race and the last write wins.
type Correlator struct {
	store            domrepo.StateStore
	logger           *logger.Logger
	defaultDirection string
	now              func() time.Time
}

func NewCorrelator(store domrepo.StateStore, lgr *logger.Logger, defaultDirection string) *Correlator {
	if strings.TrimSpace(defaultDirection) == "" {
		defaultDirection = "BUY"
	}
	return &Correlator{
		store:            store,
		logger:           lgr,
		defaultDirection: defaultDirection,
		now:              time.Now,
	}
}

// Correlate classifies the alert and updates or reads the correlation record.
// Store failures never fail the call.
func (c *Correlator) Correlate(ctx context.Context, alert *models.Alert) *models.Correlation {
	corr := &models.Correlation{
		Strategy:     alert.Strategy,
		Ticker:       alert.Ticker,
		Key:          c.store.CorrelationKey(alert.Strategy, alert.Ticker),
		Signal:       alert.Signal,
		Price:        alert.Price,
		Timeframe:    alert.Timeframe,
		Expiry:       alert.Expiry,
		CorrelatedAt: c.now(),
	}

	if !IsResultSignal(alert.Signal) {
		corr.Kind = models.KindOpening
		corr.Direction = alert.Signal
		corr.HistoryFound = true
		if err := c.store.SetLastSignal(ctx, alert.Strategy, alert.Ticker, alert.Signal); err != nil {
			c.logger.Warn("correlation write failed",
				logger.String("key", corr.Key), logger.Error(err))
		}
		return corr
	}

	corr.Kind = models.KindResult
	corr.Outcome = OutcomeOf(alert.Signal)

	last, found, err := c.store.LastSignal(ctx, alert.Strategy, alert.Ticker)
	if err != nil {
		c.logger.Warn("correlation read failed, using default direction",
			logger.String("key", corr.Key), logger.Error(err))
	}
	if found && err == nil {
		corr.Direction = last
		corr.HistoryFound = true
	} else {
		corr.Direction = c.defaultDirection
	}
	return corr
}
