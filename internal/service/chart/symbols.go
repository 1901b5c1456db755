package chart

import "strings"

var fiat = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "JPY": true,
	"AUD": true, "CAD": true, "CHF": true, "NZD": true,
}

var crypto = map[string]bool{
	"BTC": true, "ETH": true, "SOL": true, "XRP": true,
	"LTC": true, "BNB": true, "DOGE": true, "ADA": true,
}

var metals = map[string]string{
	"XAUUSD": "GC=F",
	"XAGUSD": "SI=F",
}

// BaseTicker strips the broker OTC suffix.
func BaseTicker(ticker string) string {
	return strings.TrimSuffix(strings.ToUpper(strings.TrimSpace(ticker)), "-OTC")
}

// YahooSymbol maps a relay ticker to the Yahoo Finance chart symbol.
func YahooSymbol(ticker string) string {
	t := BaseTicker(ticker)
	if s, ok := metals[t]; ok {
		return s
	}
	if len(t) == 6 && fiat[t[:3]] && fiat[t[3:]] {
		return t + "=X"
	}
	for _, quote := range []string{"USDT", "USD"} {
		if base, ok := strings.CutSuffix(t, quote); ok && crypto[base] {
			return base + "-USD"
		}
	}
	return t
}

// TapeKey maps both Finnhub symbols ("OANDA:EUR_USD", "BINANCE:BTCUSDT") and
// relay tickers ("EURUSD-OTC", "BTCUSD") to one lookup key.
func TapeKey(symbol string) string {
	s := strings.ToUpper(symbol)
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(s, "-OTC")
	s = strings.NewReplacer("_", "", "/", "", "-", "").Replace(s)
	if base, ok := strings.CutSuffix(s, "USDT"); ok {
		s = base + "USD"
	}
	return s
}
