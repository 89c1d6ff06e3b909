package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockledger/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisCart_SaveAndLoad(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisCartStore(client)
	client.Del(ctx, "cart:test-member")

	cart := domain.NewCart("test-member")
	cart.Add("b", 2)
	cart.Add("a", 1)
	if err := store.SaveCart(ctx, cart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.GetCart(ctx, "test-member")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[0].ItemID != "a" || got.Lines[1].Quantity != 2 {
		t.Errorf("unexpected cart: %+v", got)
	}

	cart.Remove("a")
	if err := store.SaveCart(ctx, cart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = store.GetCart(ctx, "test-member")
	if len(got.Lines) != 1 {
		t.Errorf("expected removed line to be gone, got %+v", got)
	}

	if err := store.DeleteCart(ctx, "test-member"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = store.GetCart(ctx, "test-member")
	if !got.IsEmpty() {
		t.Errorf("expected empty cart, got %+v", got)
	}
}

func TestRedisStockLevels_EdgeTriggered(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	levels := NewRedisStockLevels(client)
	client.Del(ctx, "stock_level:test-item")

	steps := []struct {
		level domain.StockLevel
		seq   int64
		fired bool
	}{
		{domain.StockLevelLow, 1, true},
		{domain.StockLevelLow, 2, false},
		{domain.StockLevelNormal, 1, false}, // stale
		{domain.StockLevelNormal, 0, false}, // sweep read before any entry
		{domain.StockLevelNormal, 3, false},
		{domain.StockLevelLow, 4, true},
		{domain.StockLevelLow, 4, false},
	}
	for i, step := range steps {
		fired, err := levels.Transition(ctx, "test-item", step.level, step.seq)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if fired != step.fired {
			t.Errorf("step %d: expected fired=%v, got %v", i, step.fired, fired)
		}
	}

	level, err := levels.Level(ctx, "test-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != domain.StockLevelLow {
		t.Errorf("expected LOW, got %s", level)
	}
}

func TestRedisStockLevels_ConcurrentCrossingFiresOnce(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	levels := NewRedisStockLevels(client)
	client.Del(ctx, "stock_level:concurrent-item")

	var fired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := levels.Transition(ctx, "concurrent-item", domain.StockLevelLow, 0)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				fired.Add(1)
			}
		}()
	}
	wg.Wait()

	if fired.Load() != 1 {
		t.Errorf("expected exactly 1 alert, got %d", fired.Load())
	}
}
