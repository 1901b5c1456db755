package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type scriptedSender struct {
	mu      sync.Mutex
	calls   []string
	results map[string][]error
}

func newScriptedSender() *scriptedSender {
	return &scriptedSender{results: make(map[string][]error)}
}

func (s *scriptedSender) script(key string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = append(s.results[key], errs...)
}

func (s *scriptedSender) next(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	errs := s.results[key]
	if len(errs) == 0 {
		return nil
	}
	s.results[key] = errs[1:]
	return errs[0]
}

func (s *scriptedSender) SendText(_ context.Context, destination, text string) error {
	return s.next(destination + "/" + text)
}

func (s *scriptedSender) SendImage(_ context.Context, destination string, _ []byte, caption string) error {
	return s.next(destination + "/img:" + caption)
}

func (s *scriptedSender) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type memorySink struct {
	mu      sync.Mutex
	letters []DeadLetter
}

func (m *memorySink) Put(_ context.Context, dl DeadLetter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters = append(m.letters, dl)
	return nil
}

func newTestQueue(t *testing.T, sender Sender, clock *fakeClock, opts ...Option) *DeliveryQueue {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now, clock.Sleep)}, opts...)
	return NewDeliveryQueue(logger.Nop(), sender, opts...)
}

func waitIdle(t *testing.T, q *DeliveryQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.WaitIdle(ctx))
}

func TestDeliveryQueue_FIFOWithSpacing(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	q := newTestQueue(t, sender, clock)

	require.NoError(t, q.EnqueueText("d1", "a"))
	require.NoError(t, q.EnqueueText("d2", "b"))
	require.NoError(t, q.EnqueueImage("d1", []byte{1}, "c"))
	waitIdle(t, q)

	assert.Equal(t, []string{"d1/a", "d2/b", "d1/img:c"}, sender.Calls())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
	assert.Equal(t, StateIdle, q.State())
	assert.Equal(t, 0, q.Len())
}

// gatedSender blocks its first call until released and counts overlapping
// calls.
type gatedSender struct {
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	inFlight int32
	overlaps int32

	mu    sync.Mutex
	calls []string
}

func newGatedSender() *gatedSender {
	return &gatedSender{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedSender) send(key string) error {
	if atomic.AddInt32(&g.inFlight, 1) > 1 {
		atomic.AddInt32(&g.overlaps, 1)
	}
	defer atomic.AddInt32(&g.inFlight, -1)

	g.mu.Lock()
	g.calls = append(g.calls, key)
	g.mu.Unlock()

	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return nil
}

func (g *gatedSender) SendText(_ context.Context, destination, text string) error {
	return g.send(destination + "/" + text)
}

func (g *gatedSender) SendImage(_ context.Context, destination string, _ []byte, caption string) error {
	return g.send(destination + "/img:" + caption)
}

func TestDeliveryQueue_EnqueueWhileDrainingReusesDrainer(t *testing.T) {
	clock := newFakeClock()
	sender := newGatedSender()
	q := newTestQueue(t, sender, clock)

	require.NoError(t, q.EnqueueText("d1", "a"))
	select {
	case <-sender.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first send never started")
	}

	require.NoError(t, q.EnqueueText("d2", "b"))
	require.NoError(t, q.EnqueueImage("d3", []byte{1}, "c"))
	assert.Equal(t, StateDraining, q.State())
	assert.Equal(t, 3, q.Len())

	close(sender.release)
	waitIdle(t, q)

	sender.mu.Lock()
	calls := append([]string(nil), sender.calls...)
	sender.mu.Unlock()
	assert.Equal(t, []string{"d1/a", "d2/b", "d3/img:c"}, calls)
	assert.Zero(t, atomic.LoadInt32(&sender.overlaps), "sends overlapped")
	assert.Equal(t, StateIdle, q.State())
}

func TestDeliveryQueue_RetryAfterClampIsOptIn(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	sender.script("d1/a", &ThrottledError{RetryAfter: 10 * time.Minute})
	q := newTestQueue(t, sender, clock, WithConfig(QueueConfig{
		DefaultRetryAfter: 5 * time.Second,
		MaxRetryAfter:     time.Minute,
	}))

	require.NoError(t, q.EnqueueText("d1", "a"))
	waitIdle(t, q)

	assert.Equal(t, []time.Duration{time.Minute}, clock.Sleeps())
}

func TestDeliveryQueue_ThrottledHeadIsRetriedFirst(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	sender.script("d1/a", &ThrottledError{RetryAfter: 3 * time.Second})
	q := newTestQueue(t, sender, clock)

	require.NoError(t, q.EnqueueText("d1", "a"))
	require.NoError(t, q.EnqueueText("d2", "b"))
	waitIdle(t, q)

	assert.Equal(t, []string{"d1/a", "d1/a", "d2/b"}, sender.Calls())
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, clock.Sleeps())
}

func TestDeliveryQueue_ThrottleWithoutHintUsesDefault(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	sender.script("d1/a", &ThrottledError{}, &ThrottledError{RetryAfter: 10 * time.Minute})
	q := newTestQueue(t, sender, clock)

	require.NoError(t, q.EnqueueText("d1", "a"))
	waitIdle(t, q)

	assert.Equal(t, []string{"d1/a", "d1/a", "d1/a"}, sender.Calls())
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Minute}, clock.Sleeps())
}

func TestDeliveryQueue_OtherErrorDropsEntry(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	sender.script("d1/a", errors.New("chat not found"))
	sink := &memorySink{}
	q := newTestQueue(t, sender, clock, WithDeadLetters(sink))

	require.NoError(t, q.EnqueueText("d1", "a"))
	require.NoError(t, q.EnqueueText("d2", "b"))
	waitIdle(t, q)

	assert.Equal(t, []string{"d1/a", "d2/b"}, sender.Calls())
	assert.Empty(t, clock.Sleeps())
	require.Len(t, sink.letters, 1)
	assert.Equal(t, "d1", sink.letters[0].Destination)
	assert.Contains(t, sink.letters[0].Reason, "chat not found")
}

func TestDeliveryQueue_ThrottleBudgetExhausted(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	throttle := &ThrottledError{RetryAfter: time.Second}
	sender.script("d1/a", throttle, throttle, throttle)
	sink := &memorySink{}
	q := newTestQueue(t, sender, clock, WithDeadLetters(sink), WithConfig(QueueConfig{
		MinInterval:        time.Second,
		DefaultRetryAfter:  5 * time.Second,
		MaxThrottleRetries: 2,
	}))

	require.NoError(t, q.EnqueueText("d1", "a"))
	waitIdle(t, q)

	assert.Len(t, sender.Calls(), 3)
	require.Len(t, sink.letters, 1)
	assert.Equal(t, 3, sink.letters[0].Throttles)
}

func TestDeliveryQueue_CloseRejectsNewEntries(t *testing.T) {
	clock := newFakeClock()
	sender := newScriptedSender()
	q := newTestQueue(t, sender, clock)

	require.NoError(t, q.EnqueueText("d1", "a"))
	require.NoError(t, q.Close(context.Background()))

	assert.ErrorIs(t, q.EnqueueText("d1", "b"), ErrQueueClosed)
	assert.Equal(t, []string{"d1/a"}, sender.Calls())
}

func TestRedisDeadLetters_Put(t *testing.T) {
	store := cache.NewMemoryCache()
	defer store.Close()
	sink := NewRedisDeadLetters(store, WithDeadLetterKey("dl"), WithDeadLetterMax(1))

	require.NoError(t, sink.Put(context.Background(), DeadLetter{ID: "1", Destination: "d1"}))
	require.NoError(t, sink.Put(context.Background(), DeadLetter{ID: "2", Destination: "d2"}))

	list := store.List("dl")
	require.Len(t, list, 1)
	assert.Contains(t, list[0], `"id":"2"`)
}

func TestThrottledError(t *testing.T) {
	err := errors.Join(errors.New("ctx"), &ThrottledError{RetryAfter: 2 * time.Second})
	te, ok := AsThrottled(err)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, te.RetryAfter)

	_, ok = AsThrottled(errors.New("plain"))
	assert.False(t, ok)
}
