package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mack4pf/telegram-automated-signal/internal/domain/models"
)

func TestRegistry_DefaultStrategyMergesStatic(t *testing.T) {
	ctx := context.Background()
	r := NewDestinationRegistry(newStore(t), nopLogger(), "vip", []string{"-1001", " ", "-1002", "-1001"})

	require.NoError(t, r.Register(ctx, "vip", "-1002"))
	require.NoError(t, r.Register(ctx, "vip", "@vipgroup"))

	assert.ElementsMatch(t, []string{"-1001", "-1002", "@vipgroup"}, r.Resolve(ctx, "vip"))
	assert.ElementsMatch(t, []string{"-1001", "-1002", "@vipgroup"}, r.Resolve(ctx, ""))
}

func TestRegistry_OtherStrategiesDynamicOnly(t *testing.T) {
	ctx := context.Background()
	r := NewDestinationRegistry(newStore(t), nopLogger(), "vip", []string{"-1001"})

	assert.Empty(t, r.Resolve(ctx, "gold"))
	require.NoError(t, r.Register(ctx, "GOLD", "-2001"))
	assert.Equal(t, []string{"-2001"}, r.Resolve(ctx, "gold"))
}

func TestRegistry_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := NewDestinationRegistry(newStore(t), nopLogger(), "vip", nil)

	require.NoError(t, r.Register(ctx, "scalp", "-3001"))
	require.NoError(t, r.Register(ctx, "scalp", "-3001"))
	assert.Len(t, r.Resolve(ctx, "scalp"), 1)

	require.NoError(t, r.Unregister(ctx, "scalp", "-3001"))
	require.NoError(t, r.Unregister(ctx, "scalp", "-3001"))
	assert.Empty(t, r.Resolve(ctx, "scalp"))
}

func TestRegistry_ListStrategies(t *testing.T) {
	ctx := context.Background()
	r := NewDestinationRegistry(newStore(t), nopLogger(), "vip", nil)

	require.NoError(t, r.Register(ctx, "vip", "-1"))
	require.NoError(t, r.Register(ctx, "vip", "-2"))
	require.NoError(t, r.Register(ctx, "gold", "-3"))

	got, err := r.ListStrategies(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"vip": 2, "gold": 1}, got)
}

func TestRegistry_RejectsInvalidStrategy(t *testing.T) {
	ctx := context.Background()
	r := NewDestinationRegistry(newStore(t), nopLogger(), "vip", nil)

	err := r.Register(ctx, "channels:*", "-1")
	assert.True(t, errors.Is(err, models.ErrInvalidStrategy))
	assert.Nil(t, r.Resolve(ctx, "bad key"))
	assert.Error(t, r.Register(ctx, "vip", "  "))
}

func TestRegistry_StoreDownKeepsStatic(t *testing.T) {
	ctx := context.Background()
	r := NewDestinationRegistry(brokenStore{newStore(t)}, nopLogger(), "vip", []string{"-1001"})

	assert.Equal(t, []string{"-1001"}, r.Resolve(ctx, "vip"))
	assert.Empty(t, r.Resolve(ctx, "gold"))
}
