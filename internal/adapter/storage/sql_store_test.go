package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedItem(t *testing.T, store *SQLStore, id string, quantity, threshold int) {
	t.Helper()

	err := store.UpsertItem(context.Background(), domain.Item{
		ID:                id,
		Name:              "Item " + id,
		Quantity:          quantity,
		LowStockThreshold: threshold,
		Price:             decimal.RequireFromString("9.99"),
	})
	require.NoError(t, err)
}

func sale(itemID string, qty int) domain.Movement {
	return domain.Movement{
		ItemID:      itemID,
		Direction:   domain.DirectionOut,
		Quantity:    qty,
		Reason:      domain.ReasonSale,
		PerformedBy: "test",
	}
}

func TestUpsertItem_QuantityOwnedByLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedItem(t, store, "sku-1", 10, 2)
	seedItem(t, store, "sku-1", 99, 5)

	item, err := store.GetItem(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)
	assert.Equal(t, 10, item.InitialQuantity)
	assert.Equal(t, 5, item.LowStockThreshold)
	assert.True(t, decimal.RequireFromString("9.99").Equal(item.Price))
}

func TestGetItem_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetItems_OnlyExisting(t *testing.T) {
	store := newTestStore(t)
	seedItem(t, store, "a", 1, 0)
	seedItem(t, store, "b", 2, 0)

	items, err := store.GetItems(context.Background(), []string{"a", "b", "zzz"})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, items["b"].Quantity)
}

func TestApplyMovements_DecrementWritesEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedItem(t, store, "sku-1", 10, 2)

	m := sale("sku-1", 3)
	m.ReferenceID = "saga-1"
	entries, err := store.ApplyMovements(ctx, []domain.Movement{m})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, 10, e.PreviousStock)
	assert.Equal(t, 7, e.NewStock)
	assert.Positive(t, e.Seq)
	assert.Equal(t, "saga-1", e.ReferenceID)

	item, err := store.GetItem(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 7, item.Quantity)

	byRef, err := store.ListEntriesByReference(ctx, "saga-1")
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.Equal(t, e.ID, byRef[0].ID)
}

func TestListItems_CarriesLatestSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedItem(t, store, "a", 10, 2)
	seedItem(t, store, "b", 10, 2)

	_, err := store.ApplyMovements(ctx, []domain.Movement{sale("a", 1)})
	require.NoError(t, err)
	entries, err := store.ApplyMovements(ctx, []domain.Movement{sale("a", 2)})
	require.NoError(t, err)

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, entries[0].Seq, items[0].LastSeq)
	assert.Equal(t, 7, items[0].Quantity)
	assert.Zero(t, items[1].LastSeq)

	item, err := store.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, entries[0].Seq, item.LastSeq)
}

func TestApplyMovements_InsufficientStockRollsBackEveryLine(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedItem(t, store, "a", 10, 0)
	seedItem(t, store, "b", 1, 0)

	_, err := store.ApplyMovements(ctx, []domain.Movement{sale("a", 5), sale("b", 2)})

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "b", insufficient.ItemID)
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, 2, insufficient.Requested)

	a, err := store.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, a.Quantity)

	entries, err := store.ListEntries(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyMovements_UnknownItem(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ApplyMovements(context.Background(), []domain.Movement{sale("ghost", 1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyMovements_InvalidMovement(t *testing.T) {
	store := newTestStore(t)
	seedItem(t, store, "a", 10, 0)

	_, err := store.ApplyMovements(context.Background(), []domain.Movement{sale("a", 0)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestApplyMovements_ConcurrentDecrementsNeverOversell(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	initialStock := 20
	totalRequests := 50
	seedItem(t, store, "hot", initialStock, 0)

	var successCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyMovements(ctx, []domain.Movement{sale("hot", 1)})
			var insufficient *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &insufficient):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, int32(totalRequests-initialStock), insufficientCount.Load())

	item, err := store.GetItem(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)

	entries, err := store.ListEntries(ctx, "hot")
	require.NoError(t, err)
	report := domain.Replay("hot", item.InitialQuantity, item.Quantity, entries)
	assert.True(t, report.OK, "%+v", report)
	assert.Equal(t, initialStock, report.Entries)
}

func TestLedgerEntries_AppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedItem(t, store, "a", 5, 0)

	_, err := store.ApplyMovements(ctx, []domain.Movement{sale("a", 1)})
	require.NoError(t, err)

	_, err = store.DB().ExecContext(ctx, `UPDATE ledger_entries SET quantity = 2`)
	assert.Error(t, err)

	_, err = store.DB().ExecContext(ctx, `DELETE FROM ledger_entries`)
	assert.Error(t, err)
}

func TestListLowStock(t *testing.T) {
	store := newTestStore(t)
	seedItem(t, store, "low", 2, 2)
	seedItem(t, store, "fine", 3, 2)

	items, err := store.ListLowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "low", items[0].ID)
}

func newSaga(id, member, key string, updated time.Time) domain.Saga {
	return domain.Saga{
		ID:             id,
		MemberID:       member,
		IdempotencyKey: key,
		State:          domain.SagaStateStart,
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
}

func TestSagas_IdempotencyKeyIsUniquePerMember(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateSaga(ctx, newSaga("s1", "m1", "k1", now)))

	err := store.CreateSaga(ctx, newSaga("s2", "m1", "k1", now))
	assert.ErrorIs(t, err, port.ErrDuplicateKey)

	// other members and keyless sagas never collide
	require.NoError(t, store.CreateSaga(ctx, newSaga("s3", "m2", "k1", now)))
	require.NoError(t, store.CreateSaga(ctx, newSaga("s4", "m1", "", now)))
	require.NoError(t, store.CreateSaga(ctx, newSaga("s5", "m1", "", now)))

	require.NoError(t, store.ReleaseIdempotencyKey(ctx, "s1"))
	require.NoError(t, store.CreateSaga(ctx, newSaga("s6", "m1", "k1", now)))

	found, ok, err := store.GetSagaByIdempotencyKey(ctx, "m1", "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "s6", found.ID)
}

func TestSagas_StateAndStaleListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.CreateSaga(ctx, newSaga("stale", "m1", "", old)))
	require.NoError(t, store.CreateSaga(ctx, newSaga("done", "m1", "", old)))
	require.NoError(t, store.CreateSaga(ctx, newSaga("fresh", "m1", "", time.Now().UTC())))

	require.NoError(t, store.UpdateSagaState(ctx, "done", domain.SagaStateDone, "o1", ""))

	stale, err := store.ListStaleSagas(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "stale", stale[0].ID)

	require.NoError(t, store.FlagSaga(ctx, "stale", "needs review"))
	stale, err = store.ListStaleSagas(ctx, time.Now().Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	flagged, err := store.ListFlaggedSagas(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.True(t, flagged[0].Flagged)
	assert.Equal(t, "needs review", flagged[0].Failure)

	err = store.UpdateSagaState(ctx, "missing", domain.SagaStateDone, "", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrders_CreateAndCancelWithRestock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedItem(t, store, "a", 10, 0)
	seedItem(t, store, "b", 10, 0)

	_, err := store.ApplyMovements(ctx, []domain.Movement{sale("a", 2), sale("b", 1)})
	require.NoError(t, err)

	price := decimal.RequireFromString("2.50")
	order := domain.NewOrder("o1", "m1", "s1", []domain.OrderLine{
		{ItemID: "a", Name: "A", Price: price, Quantity: 2},
		{ItemID: "b", Name: "B", Price: price, Quantity: 1},
	}, time.Now().UTC())
	require.NoError(t, store.CreateOrder(ctx, order))

	got, err := store.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
	assert.True(t, decimal.RequireFromString("7.50").Equal(got.TotalPrice))

	bySaga, ok, err := store.GetOrderBySaga(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "o1", bySaga.ID)

	restock := []domain.Movement{
		{ItemID: "a", Direction: domain.DirectionIn, Quantity: 2, Reason: domain.ReasonReturn, PerformedBy: "m1", ReferenceID: "o1"},
		{ItemID: "b", Direction: domain.DirectionIn, Quantity: 1, Reason: domain.ReasonReturn, PerformedBy: "m1", ReferenceID: "o1"},
	}
	cancelled, entries, err := store.CancelOrder(ctx, "o1", restock)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Len(t, entries, 2)

	a, err := store.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, a.Quantity)

	_, _, err = store.CancelOrder(ctx, "o1", restock)
	assert.ErrorIs(t, err, domain.ErrValidation)

	a, err = store.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, a.Quantity)

	_, err = store.UpdateOrderStatus(ctx, "nope", domain.OrderStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	orders, err := store.ListOrdersByMember(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
