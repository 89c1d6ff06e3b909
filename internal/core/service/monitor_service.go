package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

type MonitorConfig struct {
	// Workers is the number of shards draining the entry queue. With zero
	// workers entries are evaluated inline by Observe.
	Workers   int
	QueueSize int
}

// MonitorService raises one alert per NORMAL to LOW crossing of an item.
// Entries of one item always land on the same worker, so they are evaluated
// in commit order.
type MonitorService struct {
	items    port.ItemRepository
	levels   port.StockLevelRepository
	notifier port.Notifier
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	queues []chan domain.LedgerEntry
	wg     sync.WaitGroup
}

func NewMonitorService(items port.ItemRepository, levels port.StockLevelRepository, notifier port.Notifier, cfg MonitorConfig, logger *zap.Logger, tracer trace.Tracer) *MonitorService {
	m := &MonitorService{
		items:    items,
		levels:   levels,
		notifier: notifier,
		logger:   logger,
		tracer:   tracer,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for i := 0; i < cfg.Workers; i++ {
		m.queues = append(m.queues, make(chan domain.LedgerEntry, cfg.QueueSize))
	}
	return m
}

// Start launches the workers. It must be called once before entries are observed.
func (m *MonitorService) Start() {
	for i, queue := range m.queues {
		m.wg.Add(1)
		go func(id int, queue <-chan domain.LedgerEntry) {
			defer m.wg.Done()
			m.workerLoop(id, queue)
		}(i, queue)
	}
	if len(m.queues) > 0 {
		m.logger.Info("monitor workers started", zap.Int("workers", len(m.queues)))
	}
}

func (m *MonitorService) workerLoop(id int, queue <-chan domain.LedgerEntry) {
	for entry := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if _, err := m.Evaluate(ctx, entry); err != nil {
			m.logger.Warn("failed to evaluate stock level",
				zap.Int("worker", id),
				zap.String("item_id", entry.ItemID),
				zap.Int64("seq", entry.Seq),
				zap.Error(err),
			)
		}

		cancel()
	}
}

// Observe queues a committed entry for evaluation. It never blocks the
// ledger: when the item's shard is full the entry is dropped and the next
// sweep catches up.
func (m *MonitorService) Observe(ctx context.Context, entry domain.LedgerEntry) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	if len(m.queues) == 0 {
		if _, err := m.Evaluate(ctx, entry); err != nil {
			m.logger.Warn("failed to evaluate stock level", zap.String("item_id", entry.ItemID), zap.Error(err))
		}
		return
	}

	select {
	case m.queues[shard(entry.ItemID, len(m.queues))] <- entry:
	default:
		m.logger.Warn("monitor queue full, dropping entry", zap.String("item_id", entry.ItemID), zap.Int64("seq", entry.Seq))
	}
}

// Evaluate classifies the stock level the entry left behind and emits an
// alert when it is a fresh crossing into LOW.
func (m *MonitorService) Evaluate(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	item, err := m.items.GetItem(ctx, entry.ItemID)
	if err != nil {
		return false, err
	}

	level := domain.LevelOf(entry.NewStock, item.LowStockThreshold)
	crossed, err := m.levels.Transition(ctx, entry.ItemID, level, entry.Seq)
	if err != nil {
		return false, err
	}
	if !crossed {
		return false, nil
	}

	alert := domain.LowStockAlert{
		ItemID:      item.ID,
		Name:        item.Name,
		Quantity:    entry.NewStock,
		Threshold:   item.LowStockThreshold,
		LedgerSeq:   entry.Seq,
		TriggeredAt: m.now(),
	}
	m.logger.Info("low stock",
		zap.String("item_id", alert.ItemID),
		zap.Int("quantity", alert.Quantity),
		zap.Int("threshold", alert.Threshold),
	)
	if err := m.notifier.NotifyLowStock(ctx, alert); err != nil {
		return true, fmt.Errorf("notify low stock %s: %w", item.ID, err)
	}
	return true, nil
}

// Sweep re-syncs the level of every item from storage and sends one digest
// listing the items that are currently low. It never sends per-item alerts.
func (m *MonitorService) Sweep(ctx context.Context) (domain.LowStockDigest, error) {
	ctx, span := m.tracer.Start(ctx, "monitor.sweep")
	defer span.End()

	items, err := m.items.ListItems(ctx)
	if err != nil {
		return domain.LowStockDigest{}, fmt.Errorf("list items: %w", err)
	}

	now := m.now()
	digest := domain.LowStockDigest{Items: []domain.LowStockAlert{}, GeneratedAt: now}
	for _, item := range items {
		level := domain.LevelOf(item.Quantity, item.LowStockThreshold)
		if _, err := m.levels.Transition(ctx, item.ID, level, item.LastSeq); err != nil {
			return domain.LowStockDigest{}, err
		}
		if level == domain.StockLevelLow {
			digest.Items = append(digest.Items, domain.LowStockAlert{
				ItemID:      item.ID,
				Name:        item.Name,
				Quantity:    item.Quantity,
				Threshold:   item.LowStockThreshold,
				LedgerSeq:   item.LastSeq,
				TriggeredAt: now,
			})
		}
	}
	span.SetAttributes(attribute.Int("monitor.low_items", len(digest.Items)))

	if len(digest.Items) == 0 {
		return digest, nil
	}
	if err := m.notifier.NotifyDigest(ctx, digest); err != nil {
		return digest, fmt.Errorf("notify digest: %w", err)
	}
	m.logger.Info("low stock digest sent", zap.Int("items", len(digest.Items)))
	return digest, nil
}

func (m *MonitorService) LowStock(ctx context.Context) ([]domain.Item, error) {
	return m.items.ListLowStock(ctx)
}

// Close stops accepting entries and waits for queued ones to be evaluated.
func (m *MonitorService) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, queue := range m.queues {
		close(queue)
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func shard(itemID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(itemID))
	return int(h.Sum32() % uint32(n))
}
