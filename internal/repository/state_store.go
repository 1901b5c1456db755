package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	"github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/cache"
)

const (
	keySystemActive   = "system:active"
	keyChannelsPrefix = "channels:"
	suffixLastSignal  = "last_signal"
	prefixExecutor    = "executor"
)

// StateStore maps relay state onto the shared store using the key layout of
// the existing deployment:
//
//	system:active                      "true" | "false"
//	<TICKER>:last_signal               default strategy
//	<strategy>:<TICKER>:last_signal    other strategies
//	channels:<strategy>                set of destinations
//	executor:<strategy>:<TICKER>       executor signal id
type StateStore struct {
	store           cache.Service
	defaultStrategy string
}

// NewStateStore creates the store facade. defaultStrategy names the tenant
// whose correlation keys carry no strategy prefix.
func NewStateStore(store cache.Service, defaultStrategy string) *StateStore {
	return &StateStore{store: store, defaultStrategy: models.NormalizeStrategy(defaultStrategy)}
}

var _ repository.StateStore = (*StateStore)(nil)

// SystemActive treats a missing key as active. Errors are returned alongside
// true so callers can log and carry on.
func (s *StateStore) SystemActive(ctx context.Context) (bool, error) {
	v, err := cache.GetString(ctx, s.store, keySystemActive)
	if errors.Is(err, cache.ErrCacheMiss) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return v == "true", nil
}

func (s *StateStore) SetSystemActive(ctx context.Context, active bool) error {
	v := "false"
	if active {
		v = "true"
	}
	if err := s.store.Set(ctx, keySystemActive, v, 0); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// CorrelationKey returns the last-signal key for (strategy, ticker).
func (s *StateStore) CorrelationKey(strategy, ticker string) string {
	strategy = models.NormalizeStrategy(strategy)
	if strategy == "" || strategy == s.defaultStrategy {
		return cache.GenerateKey(ticker, suffixLastSignal)
	}
	return cache.GenerateKey(strategy, ticker, suffixLastSignal)
}

func (s *StateStore) LastSignal(ctx context.Context, strategy, ticker string) (string, bool, error) {
	v, err := cache.GetString(ctx, s.store, s.CorrelationKey(strategy, ticker))
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return v, true, nil
}

func (s *StateStore) SetLastSignal(ctx context.Context, strategy, ticker, signal string) error {
	if err := s.store.Set(ctx, s.CorrelationKey(strategy, ticker), signal, 0); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *StateStore) executorKey(strategy, ticker string) string {
	return cache.GenerateKey(prefixExecutor, models.NormalizeStrategy(strategy), ticker)
}

func (s *StateStore) ExecutorSignalID(ctx context.Context, strategy, ticker string) (string, bool, error) {
	v, err := cache.GetString(ctx, s.store, s.executorKey(strategy, ticker))
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return v, true, nil
}

func (s *StateStore) SetExecutorSignalID(ctx context.Context, strategy, ticker, id string) error {
	if err := s.store.Set(ctx, s.executorKey(strategy, ticker), id, 0); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func channelsKey(strategy string) string {
	return keyChannelsPrefix + models.NormalizeStrategy(strategy)
}

// AddDestination is idempotent.
func (s *StateStore) AddDestination(ctx context.Context, strategy, destination string) error {
	if _, err := s.store.SAdd(ctx, channelsKey(strategy), destination); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// RemoveDestination is idempotent.
func (s *StateStore) RemoveDestination(ctx context.Context, strategy, destination string) error {
	if _, err := s.store.SRem(ctx, channelsKey(strategy), destination); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *StateStore) Destinations(ctx context.Context, strategy string) ([]string, error) {
	members, err := s.store.SMembers(ctx, channelsKey(strategy))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return members, nil
}

// Strategies lists every strategy with a destination set and its size.
func (s *StateStore) Strategies(ctx context.Context) (map[string]int64, error) {
	keys, err := s.store.Keys(ctx, cache.BuildPattern(keyChannelsPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		n, err := s.store.SCard(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		out[strings.TrimPrefix(k, keyChannelsPrefix)] = n
	}
	return out, nil
}

func (s *StateStore) Healthy(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}
