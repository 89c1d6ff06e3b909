package port

import (
	"context"

	"github.com/rl1809/stockledger/internal/core/domain"
)

type CartRepository interface {
	// GetCart returns an empty cart when the member has none
	GetCart(ctx context.Context, memberID string) (domain.Cart, error)

	// SaveCart replaces the stored cart
	SaveCart(ctx context.Context, cart domain.Cart) error

	DeleteCart(ctx context.Context, memberID string) error
}

type StockLevelRepository interface {
	// Transition records level for the item unless seq is older than the
	// last recorded one. An equal seq describes the same ledger state and is
	// accepted. It returns true only when the item moved from NORMAL (or
	// unknown) to LOW.
	Transition(ctx context.Context, itemID string, level domain.StockLevel, seq int64) (bool, error)

	// Level returns the recorded level, NORMAL when unknown
	Level(ctx context.Context, itemID string) (domain.StockLevel, error)
}
