package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	"github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/clickhouse"
)

var signalEventsDDL = []string{
	`CREATE TABLE IF NOT EXISTS signal_events (
		id           String,
		at           DateTime64(3, 'UTC'),
		strategy     LowCardinality(String),
		ticker       LowCardinality(String),
		kind         LowCardinality(String),
		signal       String,
		direction    LowCardinality(String),
		outcome      LowCardinality(String),
		price        String,
		timeframe    LowCardinality(String),
		destinations UInt32
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(at)
	ORDER BY (strategy, ticker, at)`,
}

// ClickHouseJournal appends signal events to ClickHouse.
type ClickHouseJournal struct {
	client *clickhouse.Client
	db     *sql.DB
}

func NewClickHouseJournal(client *clickhouse.Client) *ClickHouseJournal {
	return &ClickHouseJournal{client: client, db: client.DB()}
}

var _ repository.Journal = (*ClickHouseJournal)(nil)

func (j *ClickHouseJournal) Init(ctx context.Context) error {
	return j.client.InitSchema(ctx, signalEventsDDL)
}

func (j *ClickHouseJournal) Record(ctx context.Context, ev *models.SignalEvent) error {
	if ev == nil {
		return nil
	}
	query := `INSERT INTO signal_events
		(id, at, strategy, ticker, kind, signal, direction, outcome, price, timeframe, destinations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		ev.ID, ev.At.UTC(), ev.Strategy, ev.Ticker, string(ev.Kind), ev.Signal,
		ev.Direction, string(ev.Outcome), priceText(ev.Price), ev.Timeframe, uint32(ev.Destinations))
	if err != nil {
		return fmt.Errorf("insert signal event: %w", err)
	}
	return nil
}

// Recent returns the newest events for a strategy, newest first.
func (j *ClickHouseJournal) Recent(ctx context.Context, strategy string, limit int) ([]*models.SignalEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, at, strategy, ticker, kind, signal, direction, outcome, price, timeframe, destinations
		FROM signal_events WHERE strategy = ? ORDER BY at DESC LIMIT ?`, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("query signal events: %w", err)
	}
	defer rows.Close()

	var out []*models.SignalEvent
	for rows.Next() {
		var ev models.SignalEvent
		var kind, outcome, price string
		var at time.Time
		var destinations uint32
		if err := rows.Scan(&ev.ID, &at, &ev.Strategy, &ev.Ticker, &kind, &ev.Signal,
			&ev.Direction, &outcome, &price, &ev.Timeframe, &destinations); err != nil {
			return nil, fmt.Errorf("scan signal event: %w", err)
		}
		ev.At = at
		ev.Kind = models.Kind(kind)
		ev.Outcome = models.Outcome(outcome)
		ev.Price = parsePrice(price)
		ev.Destinations = int(destinations)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (j *ClickHouseJournal) Close() error {
	return j.client.Close()
}

func priceText(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func parsePrice(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
