package storage

import (
	"context"
	"sync"

	"github.com/rl1809/stockledger/internal/core/domain"
)

// MemoryCartStore is the in-process cart store used when no Redis address is
// configured.
type MemoryCartStore struct {
	mu    sync.RWMutex
	carts map[string][]domain.CartLine
}

func NewMemoryCartStore() *MemoryCartStore {
	return &MemoryCartStore{carts: make(map[string][]domain.CartLine)}
}

func (m *MemoryCartStore) GetCart(_ context.Context, memberID string) (domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart := domain.NewCart(memberID)
	cart.Lines = append(cart.Lines, m.carts[memberID]...)
	return cart, nil
}

func (m *MemoryCartStore) SaveCart(_ context.Context, cart domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cart.IsEmpty() {
		delete(m.carts, cart.MemberID)
		return nil
	}
	lines := make([]domain.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	m.carts[cart.MemberID] = lines
	return nil
}

func (m *MemoryCartStore) DeleteCart(_ context.Context, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.carts, memberID)
	return nil
}

type levelState struct {
	level domain.StockLevel
	seq   int64
}

// MemoryStockLevels tracks alert state for a single process.
type MemoryStockLevels struct {
	mu     sync.Mutex
	levels map[string]levelState
}

func NewMemoryStockLevels() *MemoryStockLevels {
	return &MemoryStockLevels{levels: make(map[string]levelState)}
}

func (m *MemoryStockLevels) Transition(_ context.Context, itemID string, level domain.StockLevel, seq int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.levels[itemID]
	if seq < state.seq {
		return false, nil
	}

	prev := domain.StockLevelNormal
	if ok {
		prev = state.level
	}

	state.level = level
	state.seq = seq
	m.levels[itemID] = state

	return prev != domain.StockLevelLow && level == domain.StockLevelLow, nil
}

func (m *MemoryStockLevels) Level(_ context.Context, itemID string) (domain.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.levels[itemID]; ok {
		return state.level, nil
	}
	return domain.StockLevelNormal, nil
}
