package handler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/adapter/notify"
	"github.com/rl1809/stockledger/internal/adapter/storage"
	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/core/service"
)

type services struct {
	store    *storage.SQLStore
	ledger   *service.LedgerService
	cart     *service.CartService
	checkout *service.CheckoutService
	orders   *service.OrderService
	monitor  *service.MonitorService
}

func newServices(t *testing.T) *services {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "handler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zap.NewNop()
	tracer := noop.NewTracerProvider().Tracer("test")
	members := service.NewLocker("member")
	carts := storage.NewMemoryCartStore()

	s := &services{store: store}
	s.ledger = service.NewLedgerService(store, time.Second, logger, tracer)
	s.monitor = service.NewMonitorService(store, storage.NewMemoryStockLevels(), notify.NewLogNotifier(logger), service.MonitorConfig{}, logger, tracer)
	s.ledger.SetObserver(s.monitor)
	s.cart = service.NewCartService(store, carts, members, time.Second, logger, tracer)
	s.checkout = service.NewCheckoutService(store, carts, s.ledger, members, service.CheckoutConfig{LockTimeout: time.Second}, logger, tracer)
	s.orders = service.NewOrderService(store, s.ledger, logger, tracer)
	return s
}

func (s *services) seed(t *testing.T, id string, quantity, threshold int, price string) {
	t.Helper()

	require.NoError(t, s.store.UpsertItem(context.Background(), domain.Item{
		ID:                id,
		Name:              "Item " + id,
		Quantity:          quantity,
		LowStockThreshold: threshold,
		Price:             decimal.RequireFromString(price),
	}))
}
