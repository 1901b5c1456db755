package chart

import (
	"context"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	drepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
)

// Chain asks each provider in turn and returns the first usable history.
// The last error is returned when none had at least two points.
type Chain []drepo.HistoryProvider

func (c Chain) History(ctx context.Context, ticker string, span time.Duration) ([]models.PricePoint, error) {
	var (
		best    []models.PricePoint
		lastErr error
	)
	for _, p := range c {
		points, err := p.History(ctx, ticker, span)
		if err != nil {
			lastErr = err
			continue
		}
		if len(points) >= 2 {
			return points, nil
		}
		best = points
	}
	if best == nil && lastErr != nil {
		return nil, lastErr
	}
	return best, nil
}
