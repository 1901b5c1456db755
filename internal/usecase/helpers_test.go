package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	"github.com/mack4pf/telegram-automated-signal/internal/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
)

var errStoreDown = errors.New("connection refused")

func newStore(t *testing.T) *repository.StateStore {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return repository.NewStateStore(mc, "vip")
}

// brokenStore fails every call the way an unreachable Redis does.
type brokenStore struct {
	*repository.StateStore
}

func (brokenStore) SystemActive(context.Context) (bool, error) { return true, errStoreDown }
func (brokenStore) LastSignal(context.Context, string, string) (string, bool, error) {
	return "", false, errStoreDown
}
func (brokenStore) SetLastSignal(context.Context, string, string, string) error { return errStoreDown }
func (brokenStore) Destinations(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}

type sent struct {
	Destination string
	Text        string
	Image       []byte
	Caption     string
}

type recordingDeliverer struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (d *recordingDeliverer) EnqueueText(destination, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sent{Destination: destination, Text: text})
	return nil
}

func (d *recordingDeliverer) EnqueueImage(destination string, image []byte, caption string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sent{Destination: destination, Image: image, Caption: caption})
	return nil
}

func (d *recordingDeliverer) all() []sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sent(nil), d.sent...)
}

func alert(strategy, ticker, signal string) *models.Alert {
	return &models.Alert{Strategy: strategy, Ticker: ticker, Signal: signal}
}

func nopLogger() *logger.Logger {
	return logger.Nop()
}
