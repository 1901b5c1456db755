package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignalEvent is the journaled and streamed form of a correlation.
type SignalEvent struct {
	ID           string           `json:"id"`
	At           time.Time        `json:"at"`
	Strategy     string           `json:"strategy"`
	Ticker       string           `json:"ticker"`
	Kind         Kind             `json:"kind"`
	Signal       string           `json:"signal"`
	Direction    string           `json:"direction"`
	Outcome      Outcome          `json:"outcome,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Timeframe    string           `json:"timeframe,omitempty"`
	Destinations int              `json:"destinations"`
}

// NewSignalEvent builds an event from a correlation.
func NewSignalEvent(c *Correlation, destinations int) *SignalEvent {
	ev := &SignalEvent{
		ID:           uuid.NewString(),
		At:           c.CorrelatedAt,
		Strategy:     c.Strategy,
		Ticker:       c.Ticker,
		Kind:         c.Kind,
		Signal:       c.Signal,
		Direction:    c.Direction,
		Price:        c.Price,
		Timeframe:    c.Timeframe,
		Destinations: destinations,
	}
	if c.IsResult() {
		ev.Outcome = c.Outcome
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}

// Tick is one trade print from the live price stream.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// PricePoint is one sample of a price history used for charts.
type PricePoint struct {
	At    time.Time
	Price float64
}
