package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

// State of the drain loop.
type State int

const (
	StateIdle State = iota
	StateDraining
)

func (s State) String() string {
	if s == StateDraining {
		return "draining"
	}
	return "idle"
}

// QueueConfig contains the configuration for the delivery queue.
type QueueConfig struct {
	MinInterval        time.Duration // spacing since the last successful send
	DefaultRetryAfter  time.Duration // used when a throttle carries no hint
	MaxRetryAfter      time.Duration // clamp for platform supplied waits, 0 means none
	MaxThrottleRetries int           // 0 retries forever
	SendTimeout        time.Duration
}

// Option configures DeliveryQueue.
type Option func(*DeliveryQueue)

// WithConfig replaces the timing configuration.
func WithConfig(cfg QueueConfig) Option {
	return func(q *DeliveryQueue) {
		q.config = cfg
	}
}

// WithDeadLetters sets where dropped entries go.
func WithDeadLetters(sink DeadLetterSink) Option {
	return func(q *DeliveryQueue) {
		q.deadLetters = sink
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(q *DeliveryQueue) {
		if o != nil {
			q.observer = o
		}
	}
}

// WithClock replaces time.Now and the context aware sleep, mostly for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(q *DeliveryQueue) {
		if now != nil {
			q.now = now
		}
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

// DeliveryQueue is a single process-wide FIFO drained by at most one
// goroutine. Successful sends are spaced by MinInterval. A throttled head
// entry is retried after the suggested wait and keeps its place; any other
// failure drops it.
type DeliveryQueue struct {
	logger      *logger.Logger
	sender      Sender
	config      QueueConfig
	deadLetters DeadLetterSink
	observer    Observer
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	entries  []*Entry
	state    State
	closed   bool
	lastSent time.Time
	idle     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDeliveryQueue creates an idle queue.
func NewDeliveryQueue(lgr *logger.Logger, sender Sender, opts ...Option) *DeliveryQueue {
	ctx, cancel := context.WithCancel(context.Background())

	q := &DeliveryQueue{
		logger: lgr,
		sender: sender,
		config: QueueConfig{
			MinInterval:        time.Second,
			DefaultRetryAfter:  5 * time.Second,
			MaxThrottleRetries: 10,
			SendTimeout:        10 * time.Second,
		},
		observer: nopObserver{},
		now:      time.Now,
		sleep:    sleepCtx,
		ctx:      ctx,
		cancel:   cancel,
	}

	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueText appends a text delivery and starts draining if idle.
func (q *DeliveryQueue) EnqueueText(destination, text string) error {
	return q.enqueue(&Entry{Kind: KindText, Destination: destination, Text: text})
}

// EnqueueImage appends an image delivery and starts draining if idle.
func (q *DeliveryQueue) EnqueueImage(destination string, image []byte, caption string) error {
	return q.enqueue(&Entry{Kind: KindImage, Destination: destination, Image: image, Caption: caption})
}

func (q *DeliveryQueue) enqueue(e *Entry) error {
	e.ID = uuid.NewString()
	e.EnqueuedAt = q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.entries = append(q.entries, e)
	q.observer.SetQueueDepth(len(q.entries))

	if q.state == StateIdle {
		q.state = StateDraining
		q.idle = make(chan struct{})
		go q.drain(q.idle)
	}
	return nil
}

// Len returns the number of pending entries, including the one in flight.
func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// State reports whether the drain loop is running.
func (q *DeliveryQueue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// WaitIdle blocks until the queue has drained or ctx is done.
func (q *DeliveryQueue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	ch := q.idle
	draining := q.state == StateDraining
	q.mu.Unlock()

	if !draining {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits for pending ones to be delivered.
// When ctx expires first the drain loop is cancelled and the remaining
// entries are discarded.
func (q *DeliveryQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	if err := q.WaitIdle(ctx); err != nil {
		q.cancel()
		q.mu.Lock()
		left := len(q.entries)
		q.mu.Unlock()
		q.logger.Warn("delivery queue closed with pending entries",
			logger.Int("pending", left), logger.Error(err))
		return fmt.Errorf("timeout: %w", err)
	}

	q.cancel()
	q.logger.Info("delivery queue stopped gracefully")
	return nil
}

func (q *DeliveryQueue) drain(idle chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("delivery drain panic", logger.Any("panic", r))
			q.mu.Lock()
			q.entries = nil
			q.setIdleLocked(idle)
			q.mu.Unlock()
		}
	}()

	for {
		q.mu.Lock()
		if len(q.entries) == 0 || q.ctx.Err() != nil {
			q.entries = nil
			q.setIdleLocked(idle)
			q.mu.Unlock()
			return
		}
		head := q.entries[0]
		var wait time.Duration
		if !q.lastSent.IsZero() {
			wait = q.config.MinInterval - q.now().Sub(q.lastSent)
		}
		q.mu.Unlock()

		if wait > 0 {
			if err := q.sleep(q.ctx, wait); err != nil {
				continue
			}
		}

		start := q.now()
		err := q.send(head)
		latency := q.now().Sub(start)

		if err == nil {
			q.mu.Lock()
			q.lastSent = q.now()
			q.popLocked()
			q.mu.Unlock()
			q.observer.ObserveDelivery("sent", latency)
			continue
		}

		if te, ok := AsThrottled(err); ok {
			head.Throttles++
			q.observer.ObserveDelivery("throttled", latency)

			if q.config.MaxThrottleRetries > 0 && head.Throttles > q.config.MaxThrottleRetries {
				q.drop(head, fmt.Errorf("throttle retries exhausted: %w", err))
				continue
			}

			retryAfter := q.retryAfter(te)
			q.logger.Warn("delivery throttled, retrying head",
				logger.String("destination", head.Destination),
				logger.Int("throttles", head.Throttles),
				logger.Duration("retry_after_ms", retryAfter))
			_ = q.sleep(q.ctx, retryAfter)
			continue
		}

		q.drop(head, err)
	}
}

func (q *DeliveryQueue) send(e *Entry) error {
	ctx := q.ctx
	if q.config.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(q.ctx, q.config.SendTimeout)
		defer cancel()
	}

	switch e.Kind {
	case KindImage:
		return q.sender.SendImage(ctx, e.Destination, e.Image, e.Caption)
	default:
		return q.sender.SendText(ctx, e.Destination, e.Text)
	}
}

func (q *DeliveryQueue) retryAfter(te *ThrottledError) time.Duration {
	d := te.RetryAfter
	if d <= 0 {
		d = q.config.DefaultRetryAfter
	}
	if q.config.MaxRetryAfter > 0 && d > q.config.MaxRetryAfter {
		d = q.config.MaxRetryAfter
	}
	return d
}

func (q *DeliveryQueue) drop(e *Entry, err error) {
	q.mu.Lock()
	q.popLocked()
	q.mu.Unlock()

	q.observer.ObserveDelivery("dropped", 0)
	q.logger.Error("delivery dropped",
		logger.String("id", e.ID),
		logger.String("destination", e.Destination),
		logger.String("kind", string(e.Kind)),
		logger.Error(err))

	if q.deadLetters == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dl := DeadLetter{
		ID:          e.ID,
		Kind:        e.Kind,
		Destination: e.Destination,
		Text:        e.Text,
		Caption:     e.Caption,
		Reason:      err.Error(),
		Throttles:   e.Throttles,
		EnqueuedAt:  e.EnqueuedAt,
		DroppedAt:   q.now(),
	}
	if perr := q.deadLetters.Put(ctx, dl); perr != nil {
		q.logger.Warn("dead letter write failed", logger.String("id", e.ID), logger.Error(perr))
	}
}

func (q *DeliveryQueue) popLocked() {
	if len(q.entries) == 0 {
		return
	}
	q.entries[0] = nil
	q.entries = q.entries[1:]
	q.observer.SetQueueDepth(len(q.entries))
}

func (q *DeliveryQueue) setIdleLocked(idle chan struct{}) {
	q.state = StateIdle
	q.observer.SetQueueDepth(0)
	if idle != nil {
		close(idle)
	}
	if q.idle == idle {
		q.idle = nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
