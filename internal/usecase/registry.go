package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
	domrepo "github.com/mack4pf/telegram-automated-signal/internal/domain/repository"
	"github.com/mack4pf/telegram-automated-signal/pkg/config"
	"github.com/mack4pf/telegram-automated-signal/pkg/logger"
	"github.com/mack4pf/telegram-automated-signal/pkg/util"
)

// DestinationRegistry maps strategies to the chats that receive them. The
// default strategy also receives the statically configured destinations.
type DestinationRegistry struct {
	store           domrepo.StateStore
	logger          *logger.Logger
	defaultStrategy string
	static          []string
}

func NewDestinationRegistry(store domrepo.StateStore, lgr *logger.Logger, defaultStrategy string, static []string) *DestinationRegistry {
	clean := make([]string, 0, len(static))
	for _, s := range static {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	return &DestinationRegistry{
		store:           store,
		logger:          lgr,
		defaultStrategy: models.NormalizeStrategy(defaultStrategy),
		static:          util.Dedup(clean),
	}
}

// DefaultStrategy returns the tenant that owns the static destinations.
func (r *DestinationRegistry) DefaultStrategy() string {
	return r.defaultStrategy
}

func (r *DestinationRegistry) normalize(strategy string) (string, error) {
	s := models.NormalizeStrategy(strategy)
	if s == "" {
		s = r.defaultStrategy
	}
	if !config.ValidStrategy(s) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidStrategy, strategy)
	}
	return s, nil
}

// Resolve returns the destinations for a strategy. A store failure yields
// only the static list (or nothing for other strategies).
func (r *DestinationRegistry) Resolve(ctx context.Context, strategy string) []string {
	s, err := r.normalize(strategy)
	if err != nil {
		r.logger.Warn("resolve with invalid strategy", logger.String("strategy", strategy))
		return nil
	}

	dynamic, err := r.store.Destinations(ctx, s)
	if err != nil {
		r.logger.Warn("destination lookup failed", logger.String("strategy", s), logger.Error(err))
		dynamic = nil
	}

	if s != r.defaultStrategy {
		return dynamic
	}
	merged := make([]string, 0, len(r.static)+len(dynamic))
	merged = append(merged, r.static...)
	merged = append(merged, dynamic...)
	return util.Dedup(merged)
}

// Register adds a destination. Adding an existing one succeeds.
func (r *DestinationRegistry) Register(ctx context.Context, strategy, destination string) error {
	s, err := r.normalize(strategy)
	if err != nil {
		return err
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return fmt.Errorf("%w: empty destination", models.ErrInvalidPayload)
	}
	return r.store.AddDestination(ctx, s, destination)
}

// Unregister removes a destination. Removing a missing one succeeds.
func (r *DestinationRegistry) Unregister(ctx context.Context, strategy, destination string) error {
	s, err := r.normalize(strategy)
	if err != nil {
		return err
	}
	return r.store.RemoveDestination(ctx, s, strings.TrimSpace(destination))
}

// ListStrategies returns each strategy with its dynamic destination count.
func (r *DestinationRegistry) ListStrategies(ctx context.Context) (map[string]int64, error) {
	return r.store.Strategies(ctx)
}
