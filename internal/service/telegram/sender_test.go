package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mack4pf/telegram-automated-signal/pkg/queue"
)

// fakeBot records sent chattables and replays scripted errors.
type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	errs     []error
	block    chan struct{}
	updates  chan tgbotapi.Update
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, c)
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	if b.updates == nil {
		b.updates = make(chan tgbotapi.Update)
	}
	return b.updates
}

func (b *fakeBot) StopReceivingUpdates() {}

func (b *fakeBot) all() []tgbotapi.Chattable {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), b.sent...)
}

func TestSender_TextRouting(t *testing.T) {
	bot := &fakeBot{}
	s := NewSender(bot)

	require.NoError(t, s.SendText(context.Background(), "-1001234567890", "<b>hi</b>"))
	require.NoError(t, s.SendText(context.Background(), "@vipsignals", "hi"))
	require.NoError(t, s.SendText(context.Background(), "freesignals", "hi"))

	sent := bot.all()
	require.Len(t, sent, 3)

	m0 := sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-1001234567890), m0.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, m0.ParseMode)
	assert.Equal(t, "<b>hi</b>", m0.Text)

	m1 := sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, "@vipsignals", m1.ChannelUsername)

	m2 := sent[2].(tgbotapi.MessageConfig)
	assert.Equal(t, "@freesignals", m2.ChannelUsername)
}

func TestSender_Image(t *testing.T) {
	bot := &fakeBot{}
	s := NewSender(bot)

	require.NoError(t, s.SendImage(context.Background(), "-100", []byte("png"), "✅ WIN"))

	sent := bot.all()
	require.Len(t, sent, 1)
	p := sent[0].(tgbotapi.PhotoConfig)
	assert.Equal(t, int64(-100), p.ChatID)
	assert.Equal(t, "✅ WIN", p.Caption)
	fb, ok := p.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "chart.png", fb.Name)
	assert.Equal(t, []byte("png"), fb.Bytes)
}

func TestSender_TooManyRequestsIsThrottle(t *testing.T) {
	bot := &fakeBot{errs: []error{&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests: retry after 7",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7},
	}}}
	s := NewSender(bot)

	err := s.SendText(context.Background(), "-1", "x")
	te, ok := queue.AsThrottled(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, te.RetryAfter)
}

func TestSender_OtherErrorsAreNotThrottles(t *testing.T) {
	bot := &fakeBot{errs: []error{
		&tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked"},
		errors.New("dial tcp: timeout"),
	}}
	s := NewSender(bot)

	err := s.SendText(context.Background(), "-1", "x")
	require.Error(t, err)
	_, ok := queue.AsThrottled(err)
	assert.False(t, ok)

	err = s.SendText(context.Background(), "-1", "x")
	require.Error(t, err)
	_, ok = queue.AsThrottled(err)
	assert.False(t, ok)
}

func TestSender_ContextBoundsWait(t *testing.T) {
	bot := &fakeBot{block: make(chan struct{})}
	defer close(bot.block)
	s := NewSender(bot)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.SendText(ctx, "-1", "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewBot_EmptyToken(t *testing.T) {
	_, err := NewBot("", time.Second)
	assert.Error(t, err)
}
