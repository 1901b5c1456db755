package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	svccache "github.com/mack4pf/telegram-automated-signal/internal/service/cache"
	apphttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

const minFallbackPoints = 30

// YahooProvider reads intraday closes from the Yahoo Finance chart API.
// Raw responses are cached per symbol and interval.
type YahooProvider struct {
	client  *apphttp.Client
	baseURL string
	cache   svccache.BytesCache
	ttl     time.Duration
	logger  *logger.Logger
}

func NewYahooProvider(client *apphttp.Client, baseURL string, cache svccache.BytesCache, ttl time.Duration, lgr *logger.Logger) *YahooProvider {
	return &YahooProvider{client: client, baseURL: baseURL, cache: cache, ttl: ttl, logger: lgr}
}

type yahooResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// History returns the closes inside span, counted back from the newest
// sample. A span with fewer than two samples falls back to the last
// minFallbackPoints samples.
func (p *YahooProvider) History(ctx context.Context, ticker string, span time.Duration) ([]models.PricePoint, error) {
	symbol := YahooSymbol(ticker)
	interval, rng := yahooWindow(span)

	body, err := p.fetch(ctx, symbol, interval, rng)
	if err != nil {
		return nil, err
	}

	points, err := parseYahoo(body)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	return trimSpan(points, span), nil
}

func (p *YahooProvider) fetch(ctx context.Context, symbol, interval, rng string) ([]byte, error) {
	key := symbol + ":" + interval
	if p.cache != nil {
		if b, ok, err := p.cache.GetBytes(ctx, key); err == nil && ok {
			return b, nil
		} else if err != nil {
			p.logger.Debug("chart cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	var body []byte
	err := p.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodGet,
		URL:    p.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
		QueryParams: map[string][]string{
			"interval": {interval},
			"range":    {rng},
		},
	}, &body)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}

	if p.cache != nil {
		if err := p.cache.SetBytes(ctx, key, body, p.ttl); err != nil {
			p.logger.Debug("chart cache write failed", logger.String("key", key), logger.Error(err))
		}
	}
	return body, nil
}

func yahooWindow(span time.Duration) (interval, rng string) {
	switch {
	case span <= time.Hour:
		return "1m", "1d"
	case span <= 24*time.Hour:
		return "5m", "5d"
	default:
		return "1h", "1mo"
	}
}

func parseYahoo(body []byte) ([]models.PricePoint, error) {
	var resp yahooResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	r := resp.Chart.Result[0]
	closes := r.Indicators.Quote[0].Close
	points := make([]models.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		points = append(points, models.PricePoint{At: time.Unix(ts, 0).UTC(), Price: *closes[i]})
	}
	return points, nil
}

func trimSpan(points []models.PricePoint, span time.Duration) []models.PricePoint {
	if len(points) == 0 || span <= 0 {
		return points
	}
	cutoff := points[len(points)-1].At.Add(-span)
	i := len(points)
	for i > 0 && !points[i-1].At.Before(cutoff) {
		i--
	}
	if len(points)-i >= 2 {
		return points[i:]
	}
	if len(points) > minFallbackPoints {
		return points[len(points)-minFallbackPoints:]
	}
	return points
}
