package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/adapter/storage"
	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

var testTracer = noop.NewTracerProvider().Tracer("test")

type fixture struct {
	store    *storage.SQLStore
	carts    *storage.MemoryCartStore
	levels   *storage.MemoryStockLevels
	ledger   *LedgerService
	cart     *CartService
	checkout *CheckoutService
	orders   *OrderService
	monitor  *MonitorService
}

// newFixture wires the services over a fresh SQLite database. A nil notifier
// accepts every alert.
func newFixture(t *testing.T, notifier port.Notifier) *fixture {
	t.Helper()

	if notifier == nil {
		notifier = allowAlerts(t)
	}
	store := openStore(t)
	return newFixtureWith(t, store, store, notifier)
}

func openStore(t *testing.T) *storage.SQLStore {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func allowAlerts(t *testing.T) *port.MockNotifier {
	mock := port.NewMockNotifier(gomock.NewController(t))
	mock.EXPECT().NotifyLowStock(gomock.Any(), gomock.Any()).AnyTimes()
	mock.EXPECT().NotifyDigest(gomock.Any(), gomock.Any()).AnyTimes()
	return mock
}

func newFixtureWith(t *testing.T, store *storage.SQLStore, db port.DatabaseRepository, notifier port.Notifier) *fixture {
	logger := zap.NewNop()
	lockTimeout := 2 * time.Second

	f := &fixture{
		store:  store,
		carts:  storage.NewMemoryCartStore(),
		levels: storage.NewMemoryStockLevels(),
	}
	members := NewLocker("member")

	f.ledger = NewLedgerService(db, lockTimeout, logger, testTracer)
	f.monitor = NewMonitorService(db, f.levels, notifier, MonitorConfig{}, logger, testTracer)
	f.ledger.SetObserver(f.monitor)
	f.cart = NewCartService(db, f.carts, members, lockTimeout, logger, testTracer)
	f.checkout = NewCheckoutService(db, f.carts, f.ledger, members, CheckoutConfig{LockTimeout: lockTimeout}, logger, testTracer)
	f.orders = NewOrderService(db, f.ledger, logger, testTracer)
	return f
}

func (f *fixture) seed(t *testing.T, id string, quantity, threshold int, price string) {
	t.Helper()

	require.NoError(t, f.store.UpsertItem(context.Background(), domain.Item{
		ID:                id,
		Name:              "Item " + id,
		Quantity:          quantity,
		LowStockThreshold: threshold,
		Price:             decimal.RequireFromString(price),
	}))
}

func (f *fixture) quantity(t *testing.T, id string) int {
	t.Helper()

	item, err := f.store.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item.Quantity
}
