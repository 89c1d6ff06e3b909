package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockledger/internal/core/domain"
)

func TestMemoryCartStore_CopiesLines(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCartStore()

	cart := domain.NewCart("m1")
	cart.Add("a", 1)
	require.NoError(t, store.SaveCart(ctx, cart))

	cart.Set("a", 5)
	got, err := store.GetCart(ctx, "m1")
	require.NoError(t, err)
	qty, _ := got.QuantityOf("a")
	assert.Equal(t, 1, qty)

	require.NoError(t, store.DeleteCart(ctx, "m1"))
	got, err = store.GetCart(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.Equal(t, "m1", got.MemberID)
}

func TestMemoryStockLevels_EdgeTriggered(t *testing.T) {
	ctx := context.Background()
	levels := NewMemoryStockLevels()

	level, err := levels.Level(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StockLevelNormal, level)

	fired, _ := levels.Transition(ctx, "a", domain.StockLevelLow, 5)
	assert.True(t, fired)

	fired, _ = levels.Transition(ctx, "a", domain.StockLevelLow, 6)
	assert.False(t, fired)

	// an older event cannot rewind the state
	fired, _ = levels.Transition(ctx, "a", domain.StockLevelNormal, 4)
	assert.False(t, fired)
	level, _ = levels.Level(ctx, "a")
	assert.Equal(t, domain.StockLevelLow, level)

	fired, _ = levels.Transition(ctx, "a", domain.StockLevelNormal, 7)
	assert.False(t, fired)

	// a sweep that read before seq 7 is rejected
	fired, _ = levels.Transition(ctx, "a", domain.StockLevelLow, 0)
	assert.False(t, fired)
	level, _ = levels.Level(ctx, "a")
	assert.Equal(t, domain.StockLevelNormal, level)

	// same seq with a raised threshold
	fired, _ = levels.Transition(ctx, "a", domain.StockLevelLow, 7)
	assert.True(t, fired)
}
