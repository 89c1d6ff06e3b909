package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/stockledger/internal/core/domain"
)

// ErrDuplicateKey is returned when an insert violates a uniqueness constraint.
var ErrDuplicateKey = errors.New("duplicate key")

type ItemRepository interface {
	// GetItem returns a *domain.NotFoundError when the item does not exist
	GetItem(ctx context.Context, itemID string) (domain.Item, error)

	// GetItems returns the items that exist, keyed by ID
	GetItems(ctx context.Context, itemIDs []string) (map[string]domain.Item, error)

	ListItems(ctx context.Context) ([]domain.Item, error)

	// ListLowStock returns items whose quantity is at or below their threshold
	ListLowStock(ctx context.Context) ([]domain.Item, error)

	// UpsertItem creates an item or updates its catalog fields. Quantity is only
	// written on create; afterwards it belongs to the ledger.
	UpsertItem(ctx context.Context, item domain.Item) error
}

type LedgerRepository interface {
	// ApplyMovements performs every movement and appends its ledger entry in a
	// single transaction, using a conditional update for decrements. Nothing is
	// written if any movement fails.
	ApplyMovements(ctx context.Context, movements []domain.Movement) ([]domain.LedgerEntry, error)

	// ListEntries returns an item's journal ordered by Seq
	ListEntries(ctx context.Context, itemID string) ([]domain.LedgerEntry, error)

	// ListEntriesByReference returns entries tagged with referenceID
	ListEntriesByReference(ctx context.Context, referenceID string) ([]domain.LedgerEntry, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error

	GetOrder(ctx context.Context, orderID string) (domain.Order, error)

	// GetOrderBySaga reports false when the saga produced no order
	GetOrderBySaga(ctx context.Context, sagaID string) (domain.Order, bool, error)

	ListOrdersByMember(ctx context.Context, memberID string) ([]domain.Order, error)

	// UpdateOrderStatus moves a pending order to status
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)

	// CancelOrder cancels a pending order and applies the restocking movements
	// in the same transaction
	CancelOrder(ctx context.Context, orderID string, restock []domain.Movement) (domain.Order, []domain.LedgerEntry, error)
}

type SagaRepository interface {
	// CreateSaga returns ErrDuplicateKey when the member already holds the idempotency key
	CreateSaga(ctx context.Context, saga domain.Saga) error

	GetSaga(ctx context.Context, sagaID string) (domain.Saga, error)

	GetSagaByIdempotencyKey(ctx context.Context, memberID, key string) (domain.Saga, bool, error)

	UpdateSagaState(ctx context.Context, sagaID string, state domain.SagaState, orderID, failure string) error

	// ReleaseIdempotencyKey detaches the key from an aborted saga so it can be reused
	ReleaseIdempotencyKey(ctx context.Context, sagaID string) error

	// FlagSaga marks a saga as needing manual reconciliation
	FlagSaga(ctx context.Context, sagaID, reason string) error

	// ListStaleSagas returns unflagged, non-terminal sagas last updated before olderThan
	ListStaleSagas(ctx context.Context, olderThan time.Time) ([]domain.Saga, error)

	ListFlaggedSagas(ctx context.Context) ([]domain.Saga, error)
}

type DatabaseRepository interface {
	ItemRepository
	LedgerRepository
	OrderRepository
	SagaRepository
}
