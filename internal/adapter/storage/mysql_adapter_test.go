package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

func getMySQLStore(t *testing.T) *SQLStore {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/stockledger"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := OpenMySQL(ctx, dsn, PoolOptions{MaxOpenConns: 20})
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestClassifyMySQLError(t *testing.T) {
	var conflict *domain.ConcurrencyConflictError

	err := classifyMySQLError(fmt.Errorf("commit: %w", &mysql.MySQLError{Number: mysqlErrDeadlock}))
	if !errors.As(err, &conflict) {
		t.Errorf("expected concurrency conflict for deadlock, got %v", err)
	}

	err = classifyMySQLError(&mysql.MySQLError{Number: mysqlErrLockWaitTimeout})
	if !domain.IsRetryable(err) {
		t.Errorf("expected lock wait timeout to be retryable, got %v", err)
	}

	err = classifyMySQLError(&mysql.MySQLError{Number: mysqlErrDuplicateEntry})
	if !errors.Is(err, port.ErrDuplicateKey) {
		t.Errorf("expected duplicate key, got %v", err)
	}

	plain := errors.New("boom")
	if classifyMySQLError(plain) != plain {
		t.Error("expected unrelated errors to pass through")
	}
}

func TestMySQL_ConcurrentDecrements(t *testing.T) {
	store := getMySQLStore(t)
	ctx := context.Background()

	itemID := "mysql-test-" + time.Now().Format("20060102150405.000000")
	initialStock := 20
	totalRequests := 50
	seedItem(t, store, itemID, initialStock, 0)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ApplyMovements(ctx, []domain.Movement{sale(itemID, 1)})
			var insufficient *domain.InsufficientStockError
			if err == nil {
				successCount.Add(1)
			} else if !errors.As(err, &insufficient) && !domain.IsRetryable(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	item, err := store.GetItem(ctx, itemID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Quantity != initialStock-int(successCount.Load()) {
		t.Errorf("expected stock %d, got %d", initialStock-int(successCount.Load()), item.Quantity)
	}

	entries, err := store.ListEntries(ctx, itemID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if report := domain.Replay(itemID, item.InitialQuantity, item.Quantity, entries); !report.OK {
		t.Errorf("ledger does not reconcile: %+v", report)
	}
}
