package forwarding

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	apphttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
)

type alertPayload struct {
	Ticker    string           `json:"ticker"`
	Signal    string           `json:"signal"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Strategy  string           `json:"strategy"`
	Timeframe string           `json:"timeframe,omitempty"`
	Time      int64            `json:"time,omitempty"`
}

// HTTPForwarder posts opening alerts to a secondary bot.
type HTTPForwarder struct {
	client *apphttp.Client
	url    string
}

func NewHTTPForwarder(client *apphttp.Client, url string) *HTTPForwarder {
	return &HTTPForwarder{client: client, url: url}
}

func (f *HTTPForwarder) Name() string { return "http" }

// Forward skips result alerts; the secondary bot only opens trades.
func (f *HTTPForwarder) Forward(ctx context.Context, alert *models.Alert, corr *models.Correlation) error {
	if corr.IsResult() {
		return nil
	}

	payload := alertPayload{
		Ticker:    alert.Ticker,
		Signal:    alert.Signal,
		Price:     alert.Price,
		Strategy:  alert.Strategy,
		Timeframe: alert.Timeframe,
		Time:      int64(alert.Expiry.Seconds()),
	}
	err := f.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method: apphttp.MethodPost,
		URL:    f.url,
		Body:   payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", f.url, err)
	}
	return nil
}
