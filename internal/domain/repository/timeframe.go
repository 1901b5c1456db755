package repository

import (
	"strings"
	"time"
)

// Timeframe is the expiry a binary-options alert targets.
type Timeframe string

const (
	TF1m  Timeframe = "1MIN"
	TF3m  Timeframe = "3MIN"
	TF5m  Timeframe = "5MIN"
	TF15m Timeframe = "15MIN"
)

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// ParseTimeframe picks the timeframe from an explicit field, falling back to a
// token inside the signal text. Longer tokens are checked first so "15MIN"
// does not match "5MIN".
func ParseTimeframe(explicit, signal string) Timeframe {
	for _, s := range []string{explicit, signal} {
		u := strings.ToUpper(strings.ReplaceAll(s, " ", ""))
		switch {
		case u == "":
			continue
		case strings.Contains(u, "15MIN") || u == "15" || u == "15M":
			return TF15m
		case strings.Contains(u, "5MIN") || u == "5" || u == "5M":
			return TF5m
		case strings.Contains(u, "3MIN") || u == "3" || u == "3M":
			return TF3m
		case strings.Contains(u, "1MIN") || u == "1" || u == "1M":
			return TF1m
		}
	}
	return DefaultTimeframe()
}

// Label is the human form used in messages.
func (tf Timeframe) Label() string {
	switch tf {
	case TF3m:
		return "3 MINUTES"
	case TF5m:
		return "5 MINUTES"
	case TF15m:
		return "15 MINUTES"
	default:
		return "1 MINUTE"
	}
}

// Duration of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF3m:
		return 3 * time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	default:
		return time.Minute
	}
}
