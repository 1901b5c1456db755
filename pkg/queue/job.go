package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind tells the sender which API call an entry needs.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Entry is one pending delivery to a single destination.
type Entry struct {
	ID          string
	Kind        Kind
	Destination string
	Text        string
	Image       []byte
	Caption     string
	EnqueuedAt  time.Time
	Throttles   int
}

// Sender performs the actual outbound call. Implementations report
// platform throttling with *ThrottledError.
type Sender interface {
	SendText(ctx context.Context, destination, text string) error
	SendImage(ctx context.Context, destination string, image []byte, caption string) error
}

// ThrottledError is returned by a Sender when the platform asks the caller to
// slow down. RetryAfter may be zero when the platform gave no hint.
type ThrottledError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottledError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("throttled, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("throttled, retry after %s", e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error {
	return e.Err
}

// AsThrottled extracts a ThrottledError from err.
func AsThrottled(err error) (*ThrottledError, bool) {
	var te *ThrottledError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

var ErrQueueClosed = errors.New("queue: closed")

// DeadLetter describes an entry the queue gave up on.
type DeadLetter struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Destination string    `json:"destination"`
	Text        string    `json:"text,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	Reason      string    `json:"reason"`
	Throttles   int       `json:"throttles"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	DroppedAt   time.Time `json:"dropped_at"`
}

// DeadLetterSink receives dropped entries.
type DeadLetterSink interface {
	Put(ctx context.Context, dl DeadLetter) error
}

// Observer receives delivery outcomes. Results are "sent", "throttled" and
// "dropped".
type Observer interface {
	ObserveDelivery(result string, latency time.Duration)
	SetQueueDepth(depth int)
}

type nopObserver struct{}

func (nopObserver) ObserveDelivery(string, time.Duration) {}
func (nopObserver) SetQueueDepth(int) {}
