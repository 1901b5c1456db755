package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	MethodGet  = http.MethodGet
	MethodPost = http.MethodPost
)

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions describes one outbound call. Body may be []byte, string,
// io.Reader or any value encodable as JSON.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
	Body        interface{}
}

// StatusError is returned by SendAndParse for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client wraps http.Client for the outbound integrations: price history,
// forwarding and the trade executor.
type Client struct {
	timeout   time.Duration
	userAgent string
	maxBody   int64
	transport http.RoundTripper
	client    *http.Client
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout: 30 * time.Second,
		maxBody: 8 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout, Transport: c.transport}
	return c
}

// SendAndParse performs the request and decodes a 2xx response into dest.
// dest may be nil (body discarded), *[]byte (raw body) or a JSON target.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	req, err := c.newRequest(ctx, opts)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, c.maxBody)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	switch v := dest.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, body)
	case *[]byte:
		raw, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		*v = raw
	default:
		if err := json.NewDecoder(body).Decode(dest); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	var (
		body   io.Reader
		isJSON bool
	)
	switch v := opts.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(v)
	case string:
		body = strings.NewReader(v)
	case io.Reader:
		body = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		body, isJSON = bytes.NewReader(raw), true
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for k, vs := range opts.QueryParams {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if isJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent sent when the request has none.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxBody caps how much of a response is read.
func WithMaxBody(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithTransport replaces the round tripper, mostly for tests.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}
