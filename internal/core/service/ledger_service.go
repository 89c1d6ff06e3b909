package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

// EntryObserver is told about every committed ledger entry.
type EntryObserver interface {
	Observe(ctx context.Context, entry domain.LedgerEntry)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, domain.LedgerEntry) {}

type LedgerRepository interface {
	port.ItemRepository
	port.LedgerRepository
}

// LedgerService is the only writer of Item.Quantity. Every change goes
// through a conditional update and leaves a journal entry.
type LedgerService struct {
	repo        LedgerRepository
	locks       *Locker
	lockTimeout time.Duration
	observer    EntryObserver
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewLedgerService(repo LedgerRepository, lockTimeout time.Duration, logger *zap.Logger, tracer trace.Tracer) *LedgerService {
	return &LedgerService{
		repo:        repo,
		locks:       NewLocker("item"),
		lockTimeout: lockTimeout,
		observer:    nopObserver{},
		logger:      logger,
		tracer:      tracer,
	}
}

// SetObserver registers the receiver of committed entries.
func (s *LedgerService) SetObserver(o EntryObserver) {
	if o == nil {
		o = nopObserver{}
	}
	s.observer = o
}

func (s *LedgerService) Decrement(ctx context.Context, itemID string, qty int, reason domain.Reason, performedBy, referenceID string) (domain.LedgerEntry, error) {
	return s.single(ctx, domain.Movement{
		ItemID:      itemID,
		Direction:   domain.DirectionOut,
		Quantity:    qty,
		Reason:      reason,
		PerformedBy: performedBy,
		ReferenceID: referenceID,
	})
}

func (s *LedgerService) Increment(ctx context.Context, itemID string, qty int, reason domain.Reason, performedBy, referenceID string) (domain.LedgerEntry, error) {
	return s.single(ctx, domain.Movement{
		ItemID:      itemID,
		Direction:   domain.DirectionIn,
		Quantity:    qty,
		Reason:      reason,
		PerformedBy: performedBy,
		ReferenceID: referenceID,
	})
}

func (s *LedgerService) single(ctx context.Context, m domain.Movement) (domain.LedgerEntry, error) {
	entries, err := s.ApplyAll(ctx, []domain.Movement{m})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entries[0], nil
}

// ApplyAll applies every movement or none of them.
func (s *LedgerService) ApplyAll(ctx context.Context, movements []domain.Movement) ([]domain.LedgerEntry, error) {
	for _, m := range movements {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}

	var entries []domain.LedgerEntry
	err := s.withItems(ctx, movementItems(movements), func(ctx context.Context) error {
		var err error
		entries, err = s.commit(ctx, movements)
		return err
	})
	return entries, err
}

// withItems runs fn while holding the lock of every item in itemIDs.
func (s *LedgerService) withItems(ctx context.Context, itemIDs []string, fn func(ctx context.Context) error) error {
	unlock, err := s.locks.Lock(ctx, s.lockTimeout, itemIDs...)
	if err != nil {
		return err
	}
	defer unlock()

	return fn(ctx)
}

// commit expects the item locks to be held by the caller.
func (s *LedgerService) commit(ctx context.Context, movements []domain.Movement) ([]domain.LedgerEntry, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.commit")
	defer span.End()
	span.SetAttributes(attribute.Int("ledger.movements", len(movements)))

	entries, err := s.repo.ApplyMovements(ctx, movements)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply movements failed")
		return nil, err
	}

	for _, e := range entries {
		s.logger.Debug("ledger entry committed",
			zap.Int64("seq", e.Seq),
			zap.String("item_id", e.ItemID),
			zap.String("direction", string(e.Direction)),
			zap.Int("quantity", e.Quantity),
			zap.Int("previous_stock", e.PreviousStock),
			zap.Int("new_stock", e.NewStock),
			zap.String("reason", string(e.Reason)),
			zap.String("reference_id", e.ReferenceID),
		)
		// the entry is durable even if the caller has gone away
		s.observer.Observe(context.WithoutCancel(ctx), e)
	}
	return entries, nil
}

func (s *LedgerService) Item(ctx context.Context, itemID string) (domain.Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

func (s *LedgerService) Entries(ctx context.Context, itemID string) ([]domain.LedgerEntry, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, itemID)
}

// Reconcile replays the item's journal against its current quantity. The
// item lock is held so the quantity and the journal are read at the same point.
func (s *LedgerService) Reconcile(ctx context.Context, itemID string) (domain.ReconcileReport, error) {
	var report domain.ReconcileReport
	err := s.withItems(ctx, []string{itemID}, func(ctx context.Context) error {
		item, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		entries, err := s.repo.ListEntries(ctx, itemID)
		if err != nil {
			return err
		}
		report = domain.Replay(itemID, item.InitialQuantity, item.Quantity, entries)
		return nil
	})
	if err != nil {
		return domain.ReconcileReport{}, err
	}

	if !report.OK {
		s.logger.Error("ledger does not reconcile",
			zap.String("item_id", itemID),
			zap.Int("expected", report.Expected),
			zap.Int("actual", report.Actual),
			zap.Int64s("broken_seqs", report.BrokenSeqs),
		)
	}
	return report, nil
}

func (s *LedgerService) ReconcileAll(ctx context.Context) ([]domain.ReconcileReport, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	reports := make([]domain.ReconcileReport, 0, len(items))
	for _, item := range items {
		report, err := s.Reconcile(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func movementItems(movements []domain.Movement) []string {
	ids := make([]string, len(movements))
	for i, m := range movements {
		ids[i] = m.ItemID
	}
	return ids
}
