package repository

import (
	"context"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
)

// NopJournal is used when journaling is disabled.
type NopJournal struct{}

func (NopJournal) Init(context.Context) error { return nil }
func (NopJournal) Record(context.Context, *models.SignalEvent) error { return nil }
func (NopJournal) Close() error { return nil }

func (NopJournal) Recent(context.Context, string, int) ([]*models.SignalEvent, error) {
	return nil, nil
}
