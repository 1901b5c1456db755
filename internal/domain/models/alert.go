package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Alert is a normalized, admitted webhook alert.
type Alert struct {
	Ticker     string
	Signal     string
	Price      *decimal.Decimal
	Strategy   string
	Origin     string
	ChatID     string
	Timeframe  string
	// Expiry is the trade duration the alert asked for, zero when absent.
	Expiry     time.Duration
	ReceivedAt time.Time
}

// Kind classifies an alert.
type Kind string

const (
	KindOpening Kind = "opening"
	KindResult  Kind = "result"
)

// Outcome of a result alert.
type Outcome string

const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomeUnknown Outcome = "RESULT"
)

// Correlation is the correlator output for one alert.
type Correlation struct {
	Kind     Kind
	Strategy string
	Ticker   string
	Key      string

	// Signal is the raw alert text.
	Signal string
	// Direction is the opening direction: the alert itself for openings, the
	// stored or default value for results.
	Direction string
	Outcome   Outcome
	// HistoryFound is false when a result fell back to the default direction.
	HistoryFound bool

	Price        *decimal.Decimal
	Timeframe    string
	Expiry       time.Duration
	CorrelatedAt time.Time
}

// IsResult reports whether the correlation closes a trade.
func (c *Correlation) IsResult() bool {
	return c.Kind == KindResult
}

// NormalizeTicker upper-cases a ticker, drops an "EXCHANGE:" prefix and strips
// separators. A dash is kept so suffixes like "-OTC" survive.
func NormalizeTicker(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.ToUpper(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '_', '.', ' ', '\t':
			return -1
		}
		return r
	}, s)
}

// NormalizeStrategy lower-cases and trims a strategy name. Validation is the
// caller's concern.
func NormalizeStrategy(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
