// Package telegram delivers relay messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mack4pf/telegram-automated-signal/pkg/queue"
)

// BotAPI is the subset of *tgbotapi.BotAPI the relay uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBot connects to the Bot API. The client timeout bounds every call that
// is not already bounded by a context.
func NewBot(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return bot, nil
}

// Sender implements queue.Sender. Destinations are numeric chat ids
// ("-100...") or channel usernames ("@name").
type Sender struct {
	bot       BotAPI
	parseMode string
}

func NewSender(bot BotAPI) *Sender {
	return &Sender{bot: bot, parseMode: tgbotapi.ModeHTML}
}

var _ queue.Sender = (*Sender)(nil)

func (s *Sender) SendText(ctx context.Context, destination, text string) error {
	var msg tgbotapi.MessageConfig
	if id, ok := chatID(destination); ok {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(channelName(destination), text)
	}
	msg.ParseMode = s.parseMode
	msg.DisableWebPagePreview = true
	return s.send(ctx, msg)
}

func (s *Sender) SendImage(ctx context.Context, destination string, image []byte, caption string) error {
	file := tgbotapi.FileBytes{Name: "chart.png", Bytes: image}

	var photo tgbotapi.PhotoConfig
	if id, ok := chatID(destination); ok {
		photo = tgbotapi.NewPhoto(id, file)
	} else {
		photo = tgbotapi.NewPhotoToChannel(channelName(destination), file)
	}
	photo.Caption = caption
	photo.ParseMode = s.parseMode
	return s.send(ctx, photo)
}

// send runs the blocking Bot API call and gives up waiting when ctx ends.
// The HTTP client timeout ends the call itself.
func (s *Sender) send(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(c)
		done <- err
	}()

	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

// classify turns a 429 response into a queue.ThrottledError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &queue.ThrottledError{
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}

func chatID(destination string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(destination), 10, 64)
	return id, err == nil
}

func channelName(destination string) string {
	d := strings.TrimSpace(destination)
	if !strings.HasPrefix(d, "@") {
		d = "@" + d
	}
	return d
}
