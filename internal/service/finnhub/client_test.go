package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

func TestDecodeTrades(t *testing.T) {
	ticks := decodeTrades([]byte(`{"type":"trade","data":[{"s":"OANDA:EUR_USD","p":1.0851,"v":2,"t":1700000000123}]}`))
	require.Len(t, ticks, 1)
	assert.Equal(t, "OANDA:EUR_USD", ticks[0].Symbol)
	assert.Equal(t, 1.0851, ticks[0].Price)
	assert.Equal(t, int64(1700000000123), ticks[0].Timestamp.UnixMilli())

	assert.Empty(t, decodeTrades([]byte(`{"type":"ping"}`)))
	assert.Empty(t, decodeTrades([]byte(`not json`)))
}

func TestClient_SubscribeAndRead(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"BINANCE:BTCUSDT","p":64000.5,"v":0.1,"t":1700000000000}]}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New("k", wsURL, []string{"BINANCE:BTCUSDT"}, 10*time.Millisecond, time.Second, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))
	assert.Equal(t, "BINANCE:BTCUSDT", <-subscribed)

	ticks, errs := c.Read(ctx)
	select {
	case tk := <-ticks:
		require.NotNil(t, tk)
		assert.Equal(t, 64000.5, tk.Price)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	}

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
}
