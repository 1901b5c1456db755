package forwarding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	apphttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

const (
	createPath = "/api/signals/create"
	resultPath = "/api/signals/result"
	secretHdr  = "X-Admin-Secret"

	defaultExpiry = 5 * time.Minute
)

type createRequest struct {
	Ticker string  `json:"ticker"`
	Signal string  `json:"signal"`
	Price  float64 `json:"price"`
	Time   int64   `json:"time"`
}

type createResponse struct {
	SignalID string `json:"signalId"`
}

type resultRequest struct {
	SignalID string `json:"signalId"`
	Signal   string `json:"signal"`
}

// Executor mirrors trades onto the execution server. An opening creates a
// signal there and the returned id is kept in the state store until the
// matching result reports WIN or LOSS against it.
type Executor struct {
	client     *apphttp.Client
	baseURL    string
	secret     string
	strategies map[string]struct{}
	store      domrepo.StateStore
	logger     *logger.Logger
}

func NewExecutor(client *apphttp.Client, baseURL, secret string, strategies []string, store domrepo.StateStore, lgr *logger.Logger) *Executor {
	set := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		set[models.NormalizeStrategy(s)] = struct{}{}
	}
	return &Executor{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		strategies: set,
		store:      store,
		logger:     lgr,
	}
}

func (e *Executor) Name() string { return "executor" }

func (e *Executor) Forward(ctx context.Context, alert *models.Alert, corr *models.Correlation) error {
	if _, ok := e.strategies[corr.Strategy]; !ok {
		return nil
	}
	if corr.IsResult() {
		return e.sendResult(ctx, corr)
	}
	return e.createSignal(ctx, alert, corr)
}

func (e *Executor) createSignal(ctx context.Context, alert *models.Alert, corr *models.Correlation) error {
	req := createRequest{
		Ticker: strings.ReplaceAll(corr.Ticker, "-OTC", ""),
		Signal: ExecutorAction(alert.Signal),
		Time:   int64(ExecutorExpiry(alert).Seconds()),
	}
	if alert.Price != nil {
		req.Price = alert.Price.InexactFloat64()
	}

	var resp createResponse
	if err := e.post(ctx, createPath, req, &resp); err != nil {
		return err
	}
	if resp.SignalID == "" {
		return fmt.Errorf("executor create: empty signalId")
	}

	if err := e.store.SetExecutorSignalID(ctx, corr.Strategy, corr.Ticker, resp.SignalID); err != nil {
		return fmt.Errorf("store executor signal id: %w", err)
	}
	e.logger.Info("executor signal created",
		logger.String("strategy", corr.Strategy),
		logger.String("ticker", corr.Ticker),
		logger.String("signal_id", resp.SignalID))
	return nil
}

func (e *Executor) sendResult(ctx context.Context, corr *models.Correlation) error {
	id, ok, err := e.store.ExecutorSignalID(ctx, corr.Strategy, corr.Ticker)
	if err != nil {
		return fmt.Errorf("load executor signal id: %w", err)
	}
	if !ok {
		e.logger.Debug("no executor signal to settle",
			logger.String("strategy", corr.Strategy), logger.String("ticker", corr.Ticker))
		return nil
	}

	result := string(models.OutcomeLoss)
	if util.ContainsAnyFold(corr.Signal, "WIN", "WON") {
		result = string(models.OutcomeWin)
	}
	return e.post(ctx, resultPath, resultRequest{SignalID: id, Signal: result}, nil)
}

func (e *Executor) post(ctx context.Context, path string, body, dest interface{}) error {
	err := e.client.SendAndParse(ctx, &apphttp.RequestOptions{
		Method:  apphttp.MethodPost,
		URL:     e.baseURL + path,
		Headers: map[string]string{secretHdr: e.secret, "Content-Type": "application/json"},
		Body:    body,
	}, dest)
	if err != nil {
		return fmt.Errorf("executor %s: %w", path, err)
	}
	return nil
}

// ExecutorAction maps alert text to the executor's buy/sell vocabulary.
func ExecutorAction(signal string) string {
	if util.ContainsAnyFold(signal, "buy", "call") {
		return "buy"
	}
	return "sell"
}

// ExecutorExpiry prefers the alert's explicit expiry, then a "1min", "3min" or
// "15min" hint in the signal text, then five minutes.
func ExecutorExpiry(alert *models.Alert) time.Duration {
	if alert.Expiry > 0 {
		return alert.Expiry
	}
	s := strings.ToLower(alert.Signal)
	switch {
	case strings.Contains(s, "15min"):
		return 15 * time.Minute
	case strings.Contains(s, "3min"):
		return 3 * time.Minute
	case strings.Contains(s, "1min"):
		return time.Minute
	}
	return defaultExpiry
}
