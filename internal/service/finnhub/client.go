package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	drepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

// Client implements a MarketStream backed by Finnhub WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a new Finnhub MarketStream.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) drepo.MarketStream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         lgr,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("finnhub connected", logger.Int("symbols", len(c.symbols)))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected {
		return fmt.Errorf("finnhub not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
		c.logger.Debug("finnhub subscribed", logger.String("symbol", s))
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Read streams ticks and errors. Both channels close when the read loop ends.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	done := make(chan struct{})

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn == conn && conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	// read loop
	go func() {
		defer close(done)
		defer close(ticks)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("finnhub conn nil")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("finnhub read: %w", err)
				return
			}
			for _, t := range decodeTrades(b) {
				select {
				case ticks <- t:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return ticks, errs
}

// decodeTrades ignores frames that are not trade batches (pings, errors).
func decodeTrades(b []byte) []*models.Tick {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return nil
	}
	out := make([]*models.Tick, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Tick{
			Symbol:    d.S,
			Price:     d.P,
			Volume:    d.V,
			Timestamp: time.UnixMilli(d.T).UTC(),
		})
	}
	return out
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()

	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
