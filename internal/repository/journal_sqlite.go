package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	"github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
)

// signalEventRow is the SQLite row layout for a SignalEvent.
type signalEventRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	At           time.Time `gorm:"index:idx_strategy_at,priority:2"`
	Strategy     string    `gorm:"size:32;index:idx_strategy_at,priority:1"`
	Ticker       string    `gorm:"size:64"`
	Kind         string    `gorm:"size:16"`
	Signal       string    `gorm:"size:256"`
	Direction    string    `gorm:"size:16"`
	Outcome      string    `gorm:"size:16"`
	Price        string    `gorm:"size:40"`
	Timeframe    string    `gorm:"size:8"`
	Destinations int
}

func (signalEventRow) TableName() string {
	return "signal_events"
}

// SQLiteJournal keeps signal events in a local SQLite file. It is meant for
// single-instance deployments without ClickHouse.
type SQLiteJournal struct {
	db *gorm.DB
}

// NewSQLiteJournal opens (or creates) the database at path. ":memory:" is
// accepted for tests.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create journal directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

var _ repository.Journal = (*SQLiteJournal)(nil)

func (j *SQLiteJournal) Init(ctx context.Context) error {
	if err := j.db.WithContext(ctx).AutoMigrate(&signalEventRow{}); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) Record(ctx context.Context, ev *models.SignalEvent) error {
	if ev == nil {
		return nil
	}
	row := signalEventRow{
		ID:           ev.ID,
		At:           ev.At.UTC(),
		Strategy:     ev.Strategy,
		Ticker:       ev.Ticker,
		Kind:         string(ev.Kind),
		Signal:       ev.Signal,
		Direction:    ev.Direction,
		Outcome:      string(ev.Outcome),
		Price:        priceText(ev.Price),
		Timeframe:    ev.Timeframe,
		Destinations: ev.Destinations,
	}
	if err := j.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert signal event: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) Recent(ctx context.Context, strategy string, limit int) ([]*models.SignalEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []signalEventRow
	err := j.db.WithContext(ctx).
		Where("strategy = ?", strategy).
		Order("at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query signal events: %w", err)
	}

	out := make([]*models.SignalEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, &models.SignalEvent{
			ID:           r.ID,
			At:           r.At,
			Strategy:     r.Strategy,
			Ticker:       r.Ticker,
			Kind:         models.Kind(r.Kind),
			Signal:       r.Signal,
			Direction:    r.Direction,
			Outcome:      models.Outcome(r.Outcome),
			Price:        parsePrice(r.Price),
			Timeframe:    r.Timeframe,
			Destinations: r.Destinations,
		})
	}
	return out, nil
}

func (j *SQLiteJournal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
