package usecase

import (
	"fmt"
	"html"
	"strings"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

var pairFlags = map[string]string{
	"EURUSD": "🇪🇺🇺🇸",
	"GBPUSD": "🇬🇧🇺🇸",
	"USDJPY": "🇺🇸🇯🇵",
	"AUDUSD": "🇦🇺🇺🇸",
	"USDCAD": "🇺🇸🇨🇦",
	"XAUUSD": "🥇🇺🇸",
}

const defaultFlag = "🎯"

// PairFlag returns the emoji shown in front of a ticker.
func PairFlag(ticker string) string {
	base := strings.TrimSuffix(strings.ToUpper(ticker), "-OTC")
	if f, ok := pairFlags[base]; ok {
		return f
	}
	return defaultFlag
}

// IsBullish reports whether a direction text reads as long.
func IsBullish(direction string) bool {
	return util.ContainsAnyFold(direction, "BUY", "CALL", "UP", "LONG")
}

func directionEmoji(direction string) string {
	if IsBullish(direction) {
		return "🟢"
	}
	return "🔴"
}

// FormatMessage renders a correlation as Telegram HTML.
func FormatMessage(c *models.Correlation) string {
	if c.IsResult() {
		return FormatResult(c)
	}
	return FormatOpening(c)
}

// FormatOpening renders an incoming-signal message.
func FormatOpening(c *models.Correlation) string {
	tf := domrepo.ParseTimeframe(c.Timeframe, c.Signal)

	var b strings.Builder
	b.WriteString("⚡ <b>INCOMING SIGNAL</b>\n\n")
	fmt.Fprintf(&b, "%s <b>%s</b>\n", PairFlag(c.Ticker), html.EscapeString(c.Ticker))
	fmt.Fprintf(&b, "%s <b>%s</b>\n", directionEmoji(c.Signal), html.EscapeString(strings.ToUpper(c.Signal)))
	fmt.Fprintf(&b, "⏰ <b>%s</b>\n", tf.Label())
	if c.Price != nil {
		fmt.Fprintf(&b, "💵 Entry: <code>%s</code>\n", c.Price.String())
	}
	return b.String()
}

// FormatResult renders a trade result message.
func FormatResult(c *models.Correlation) string {
	var headline string
	switch c.Outcome {
	case models.OutcomeWin:
		headline = "✅ <b>WIN</b>"
	case models.OutcomeLoss:
		headline = "❌ <b>LOSS</b>"
	default:
		headline = "📊 <b>RESULT</b>"
	}

	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s <b>%s</b>\n", PairFlag(c.Ticker), html.EscapeString(c.Ticker))
	fmt.Fprintf(&b, "%s Entry: <b>%s</b>\n", directionEmoji(c.Direction), html.EscapeString(strings.ToUpper(c.Direction)))
	if c.Price != nil {
		fmt.Fprintf(&b, "🏁 Close: <code>%s</code>\n", c.Price.String())
	}
	return b.String()
}
