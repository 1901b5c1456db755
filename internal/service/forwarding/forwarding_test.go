package forwarding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/internal/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
	apphttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

func opening(strategy, ticker, signal string) (*models.Alert, *models.Correlation) {
	price := decimal.RequireFromString("1.0850")
	a := &models.Alert{Ticker: ticker, Signal: signal, Price: &price, Strategy: strategy, Expiry: time.Minute}
	c := &models.Correlation{Kind: models.KindOpening, Strategy: strategy, Ticker: ticker, Signal: signal, Direction: signal, Price: &price}
	return a, c
}

func result(strategy, ticker, signal string) (*models.Alert, *models.Correlation) {
	a := &models.Alert{Ticker: ticker, Signal: signal, Strategy: strategy}
	c := &models.Correlation{Kind: models.KindResult, Strategy: strategy, Ticker: ticker, Signal: signal, Direction: "BUY", Outcome: models.OutcomeWin}
	return a, c
}

func TestHTTPForwarder_OpeningsOnly(t *testing.T) {
	var got []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body)
	}))
	defer srv.Close()

	f := NewHTTPForwarder(apphttp.NewClient(), srv.URL)

	a, c := opening("vip", "EURUSD", "BUY")
	require.NoError(t, f.Forward(context.Background(), a, c))
	a, c = result("vip", "EURUSD", "WIN")
	require.NoError(t, f.Forward(context.Background(), a, c))

	require.Len(t, got, 1)
	assert.Equal(t, "EURUSD", got[0]["ticker"])
	assert.Equal(t, "BUY", got[0]["signal"])
	assert.Equal(t, "1.085", got[0]["price"])
	assert.Equal(t, float64(60), got[0]["time"])
}

func TestHTTPForwarder_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a, c := opening("vip", "EURUSD", "BUY")
	err := NewHTTPForwarder(apphttp.NewClient(), srv.URL).Forward(context.Background(), a, c)
	var se *apphttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

type capturePublisher struct {
	topic string
	key   []byte
	value interface{}
}

func (p *capturePublisher) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func TestKafkaForwarder_KeyAndEvent(t *testing.T) {
	pub := &capturePublisher{}
	f := NewKafkaForwarder(pub, "signals.correlated")

	a, c := result("gold", "XAUUSD", "WIN")
	require.NoError(t, f.Forward(context.Background(), a, c))

	assert.Equal(t, "signals.correlated", pub.topic)
	assert.Equal(t, "gold:XAUUSD", string(pub.key))
	ev, ok := pub.value.(*models.SignalEvent)
	require.True(t, ok)
	assert.Equal(t, models.OutcomeWin, ev.Outcome)
	assert.NotEmpty(t, ev.ID)
}

type executorServer struct {
	mu      sync.Mutex
	creates []createRequest
	results []resultRequest
	secrets []string
}

func (s *executorServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/signals/create", func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.creates = append(s.creates, req)
		s.secrets = append(s.secrets, r.Header.Get("X-Admin-Secret"))
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"signalId":"sig-1"}`))
	})
	mux.HandleFunc("/api/signals/result", func(w http.ResponseWriter, r *http.Request) {
		var req resultRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.results = append(s.results, req)
		s.mu.Unlock()
	})
	return mux
}

func TestExecutor_CreateThenResult(t *testing.T) {
	es := &executorServer{}
	srv := httptest.NewServer(es.handler(t))
	defer srv.Close()

	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := repository.NewStateStore(mc, "vip")
	ex := NewExecutor(apphttp.NewClient(), srv.URL+"/", "s3cret", []string{"VIP"}, store, logger.Nop())
	ctx := context.Background()

	a, c := opening("vip", "EURUSD-OTC", "CALL")
	require.NoError(t, ex.Forward(ctx, a, c))

	id, ok, err := store.ExecutorSignalID(ctx, "vip", "EURUSD-OTC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sig-1", id)

	a, c = result("vip", "EURUSD-OTC", "LOST")
	require.NoError(t, ex.Forward(ctx, a, c))

	require.Len(t, es.creates, 1)
	assert.Equal(t, createRequest{Ticker: "EURUSD", Signal: "buy", Price: 1.085, Time: 60}, es.creates[0])
	assert.Equal(t, []string{"s3cret"}, es.secrets)
	require.Len(t, es.results, 1)
	assert.Equal(t, resultRequest{SignalID: "sig-1", Signal: "LOSS"}, es.results[0])
}

func TestExecutor_SkipsOtherStrategiesAndUnknownResults(t *testing.T) {
	es := &executorServer{}
	srv := httptest.NewServer(es.handler(t))
	defer srv.Close()

	mc := cache.NewMemoryCache()
	defer mc.Close()
	ex := NewExecutor(apphttp.NewClient(), srv.URL, "x", []string{"vip"}, repository.NewStateStore(mc, "vip"), logger.Nop())

	a, c := opening("gold", "XAUUSD", "BUY")
	require.NoError(t, ex.Forward(context.Background(), a, c))
	a, c = result("vip", "GBPUSD", "WIN")
	require.NoError(t, ex.Forward(context.Background(), a, c))

	assert.Empty(t, es.creates)
	assert.Empty(t, es.results)
}

func TestExecutorMapping(t *testing.T) {
	assert.Equal(t, "buy", ExecutorAction("Call 3min"))
	assert.Equal(t, "sell", ExecutorAction("PUT"))

	assert.Equal(t, 3*time.Minute, ExecutorExpiry(&models.Alert{Signal: "put 3min"}))
	assert.Equal(t, 15*time.Minute, ExecutorExpiry(&models.Alert{Signal: "call 15min"}))
	assert.Equal(t, time.Minute, ExecutorExpiry(&models.Alert{Signal: "call 1min"}))
	assert.Equal(t, 5*time.Minute, ExecutorExpiry(&models.Alert{Signal: "call"}))
	assert.Equal(t, 90*time.Second, ExecutorExpiry(&models.Alert{Signal: "call 1min", Expiry: 90 * time.Second}))
}

type stubForwarder struct {
	name  string
	err   error
	block bool
	calls int
	mu    sync.Mutex
}

func (s *stubForwarder) Name() string { return s.name }

func (s *stubForwarder) Forward(ctx context.Context, _ *models.Alert, _ *models.Correlation) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

type forwardMetrics struct {
	domrepo.NopMetrics
	mu  sync.Mutex
	res map[string]bool
}

func (m *forwardMetrics) RecordForward(target string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.res[target] = ok
}

func TestFanout_IsolatesFailures(t *testing.T) {
	ok := &stubForwarder{name: "ok"}
	bad := &stubForwarder{name: "bad", err: errors.New("refused")}
	slow := &stubForwarder{name: "slow", block: true}
	m := &forwardMetrics{res: map[string]bool{}}

	f := NewFanout([]domrepo.Forwarder{ok, bad, slow}, 20*time.Millisecond, m, logger.Nop())
	a, c := opening("vip", "EURUSD", "BUY")
	err := f.Forward(context.Background(), a, c)

	require.Error(t, err)
	assert.ErrorContains(t, err, "bad: refused")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, map[string]bool{"ok": true, "bad": false, "slow": false}, m.res)
	assert.Equal(t, 3, f.Len())
}

func TestFanout_Empty(t *testing.T) {
	a, c := opening("vip", "EURUSD", "BUY")
	assert.NoError(t, NewFanout(nil, time.Second, nil, logger.Nop()).Forward(context.Background(), a, c))
}
