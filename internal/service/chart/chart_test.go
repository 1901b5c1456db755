package chart

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	drepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	svccache "github.com/mack4pf/telegram-automated-signal/internal/service/cache"
	apphttp "github.com/mack4pf/telegram-automated-signal/pkg/http"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

type staticHistory struct {
	points []models.PricePoint
	err    error
	span   time.Duration
}

func (s *staticHistory) History(_ context.Context, _ string, span time.Duration) ([]models.PricePoint, error) {
	s.span = span
	return s.points, s.err
}

func series(prices ...float64) []models.PricePoint {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{At: base.Add(time.Duration(i) * time.Minute), Price: p}
	}
	return out
}

func TestSymbols(t *testing.T) {
	tests := []struct {
		in, yahoo, tape string
	}{
		{"EURUSD-OTC", "EURUSD=X", "EURUSD"},
		{"btcusdt", "BTC-USD", "BTCUSD"},
		{"XAUUSD", "GC=F", "XAUUSD"},
		{"AAPL", "AAPL", "AAPL"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.yahoo, YahooSymbol(tt.in))
			assert.Equal(t, tt.tape, TapeKey(tt.in))
		})
	}
	assert.Equal(t, "EURUSD", TapeKey("OANDA:EUR_USD"))
	assert.Equal(t, "BTCUSD", TapeKey("BINANCE:BTCUSDT"))
}

func TestRenderer_PNG(t *testing.T) {
	h := &staticHistory{points: series(1.10, 1.12, 1.11, 1.15)}
	r := NewRenderer(h, logger.Nop(), WithSize(600, 400))

	b, err := r.Render(context.Background(), "EURUSD", drepo.RenderRequest{Win: true, Price: 1.15, Span: 3 * time.Minute})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 600, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())
	assert.Equal(t, 3*time.Minute, h.span)

	// corner keeps the win background
	cr, cg, _, _ := img.At(2, 2).RGBA()
	assert.Greater(t, cg, cr)
}

func TestRenderer_LossBackground(t *testing.T) {
	r := NewRenderer(&staticHistory{points: series(2, 1)}, logger.Nop())
	b, err := r.Render(context.Background(), "EURUSD", drepo.RenderRequest{})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	cr, cg, _, _ := img.At(2, 2).RGBA()
	assert.Greater(t, cr, cg)
}

func TestRenderer_Unavailable(t *testing.T) {
	r := NewRenderer(&staticHistory{points: series(1.1)}, logger.Nop())
	_, err := r.Render(context.Background(), "EURUSD", drepo.RenderRequest{Win: true})
	assert.ErrorIs(t, err, models.ErrRendererUnavailable)

	r = NewRenderer(&staticHistory{err: errors.New("boom")}, logger.Nop())
	_, err = r.Render(context.Background(), "EURUSD", drepo.RenderRequest{Win: true})
	assert.ErrorIs(t, err, models.ErrRendererUnavailable)
}

func TestRenderer_FlatSeries(t *testing.T) {
	r := NewRenderer(&staticHistory{points: series(5, 5, 5)}, logger.Nop())
	_, err := r.Render(context.Background(), "EURUSD", drepo.RenderRequest{Win: true})
	assert.NoError(t, err)
}

const yahooBody = `{"chart":{"result":[{"timestamp":[1700000000,1700000060,1700000120,1700000180],
"indicators":{"quote":[{"close":[1.1,null,1.2,1.3]}]}}],"error":null}`

func TestYahooProvider_ParsesAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/v8/finance/chart/EURUSD=X", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(yahooBody))
	}))
	defer srv.Close()

	p := NewYahooProvider(apphttp.NewClient(), srv.URL, svccache.NewTTLCache(), 30*time.Second, logger.Nop())

	points, err := p.History(context.Background(), "EURUSD-OTC", 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 1.2, points[0].Price)
	assert.Equal(t, 1.3, points[1].Price)

	_, err = p.History(context.Background(), "EURUSD", 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestYahooProvider_ErrorPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	p := NewYahooProvider(apphttp.NewClient(), srv.URL, nil, 0, logger.Nop())
	_, err := p.History(context.Background(), "ZZZ", time.Minute)
	assert.ErrorContains(t, err, "No data found")
}

func TestYahooProvider_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewYahooProvider(apphttp.NewClient(), srv.URL, nil, 0, logger.Nop())
	_, err := p.History(context.Background(), "EURUSD", time.Minute)
	var se *apphttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestTrimSpan_Fallback(t *testing.T) {
	pts := series(1, 2, 3)
	assert.Len(t, trimSpan(pts, time.Minute), 2)
	assert.Len(t, trimSpan(pts, time.Second), 3)
	assert.Len(t, trimSpan(pts, 0), 3)
}

type fakeStream struct {
	ticks      chan *models.Tick
	errs       chan error
	reconnects int32
}

func (f *fakeStream) Connect(context.Context) error   { return nil }
func (f *fakeStream) Subscribe(context.Context) error { return nil }
func (f *fakeStream) Read(context.Context) (<-chan *models.Tick, <-chan error) {
	return f.ticks, f.errs
}
func (f *fakeStream) Reconnect(context.Context) error {
	atomic.AddInt32(&f.reconnects, 1)
	return nil
}
func (f *fakeStream) Close() error      { return nil }
func (f *fakeStream) IsConnected() bool { return true }

func TestPriceTape_FeedsHistory(t *testing.T) {
	fs := &fakeStream{ticks: make(chan *models.Tick, 8), errs: make(chan error, 1)}
	tape := NewPriceTape(fs, 3, nil, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tape.Run(ctx) }()

	base := time.Now()
	for i, p := range []float64{1, 2, 3, 4} {
		fs.ticks <- &models.Tick{Symbol: "OANDA:EUR_USD", Price: p, Timestamp: base.Add(time.Duration(i) * time.Second)}
	}

	require.Eventually(t, func() bool {
		pts, _ := tape.History(ctx, "EURUSD-OTC", time.Hour)
		return len(pts) == 3 && pts[2].Price == 4
	}, time.Second, 10*time.Millisecond)

	fs.errs <- errors.New("read failed")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fs.reconnects) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestChain(t *testing.T) {
	empty := &staticHistory{}
	failing := &staticHistory{err: errors.New("down")}
	good := &staticHistory{points: series(1, 2)}

	pts, err := Chain{empty, failing, good}.History(context.Background(), "X", time.Minute)
	require.NoError(t, err)
	assert.Len(t, pts, 2)

	_, err = Chain{failing}.History(context.Background(), "X", time.Minute)
	assert.Error(t, err)
}
