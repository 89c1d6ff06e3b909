package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

const defaultFinishTimeout = 5 * time.Second

type CheckoutConfig struct {
	// LockTimeout bounds how long a checkout waits for member and item locks.
	LockTimeout   time.Duration
	// FinishTimeout bounds the saga steps that run once stock may have moved.
	// Those steps ignore the caller's cancellation.
	FinishTimeout time.Duration
}

type CheckoutResult struct {
	Order domain.Order
	// Replayed is set when the order was produced by an earlier request
	// carrying the same idempotency key.
	Replayed bool
}

// CheckoutService turns a member's cart into an order. Each attempt is
// recorded as a saga so an interrupted checkout can be recovered.
type CheckoutService struct {
	db      port.DatabaseRepository
	carts   port.CartRepository
	ledger  *LedgerService
	members *Locker
	cfg     CheckoutConfig
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewCheckoutService(db port.DatabaseRepository, carts port.CartRepository, ledger *LedgerService, members *Locker, cfg CheckoutConfig, logger *zap.Logger, tracer trace.Tracer) *CheckoutService {
	if cfg.FinishTimeout <= 0 {
		cfg.FinishTimeout = defaultFinishTimeout
	}
	return &CheckoutService{
		db:      db,
		carts:   carts,
		ledger:  ledger,
		members: members,
		cfg:     cfg,
		logger:  logger,
		tracer:  tracer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *CheckoutService) Checkout(ctx context.Context, memberID, idempotencyKey string) (CheckoutResult, error) {
	if memberID == "" {
		return CheckoutResult{}, domain.NewValidationError("memberId", "is required")
	}

	ctx, span := s.tracer.Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID))

	result, err := s.checkout(ctx, memberID, idempotencyKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return CheckoutResult{}, err
	}

	span.SetAttributes(
		attribute.String("order.id", result.Order.ID),
		attribute.String("saga.id", result.Order.SagaID),
		attribute.Bool("checkout.replayed", result.Replayed),
	)
	return result, nil
}

func (s *CheckoutService) checkout(ctx context.Context, memberID, key string) (CheckoutResult, error) {
	unlockMember, err := s.members.Lock(ctx, s.cfg.LockTimeout, memberID)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer unlockMember()

	if key != "" {
		result, done, err := s.replay(ctx, memberID, key)
		if err != nil || done {
			return result, err
		}
	}

	cart, err := s.carts.GetCart(ctx, memberID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return CheckoutResult{}, domain.ErrEmptyCart
	}

	now := s.now()
	saga := domain.Saga{
		ID:             uuid.NewString(),
		MemberID:       memberID,
		IdempotencyKey: key,
		State:          domain.SagaStateStart,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.CreateSaga(ctx, saga); err != nil {
		if errors.Is(err, port.ErrDuplicateKey) && key != "" {
			// another instance took the key between lookup and insert
			result, done, lookupErr := s.replay(ctx, memberID, key)
			if lookupErr != nil || done {
				return result, lookupErr
			}
			return CheckoutResult{}, &domain.ConcurrencyConflictError{Resource: "idempotency key " + key, Err: err}
		}
		return CheckoutResult{}, fmt.Errorf("create saga: %w", err)
	}

	log := s.logger.With(zap.String("saga_id", saga.ID), zap.String("member_id", memberID))
	log.Info("checkout started", zap.Int("lines", len(cart.Lines)))

	lines := cart.SortedLines()
	itemIDs := make([]string, len(lines))
	for i, l := range lines {
		itemIDs[i] = l.ItemID
	}

	var order domain.Order
	err = s.ledger.withItems(ctx, itemIDs, func(ctx context.Context) error {
		var err error
		order, err = s.run(ctx, log, saga, lines)
		return err
	})

	ctx, cancel := s.detach(ctx)
	defer cancel()

	if err != nil {
		var partial *domain.PersistencePartialFailureError
		if !errors.As(err, &partial) {
			s.abort(ctx, log, saga, err)
		}
		return CheckoutResult{}, err
	}

	s.finish(ctx, log, saga, order)
	return CheckoutResult{Order: order}, nil
}

// replay resolves an idempotency key that was seen before. done reports
// whether the caller should stop and return result/err.
func (s *CheckoutService) replay(ctx context.Context, memberID, key string) (CheckoutResult, bool, error) {
	saga, found, err := s.db.GetSagaByIdempotencyKey(ctx, memberID, key)
	if err != nil {
		return CheckoutResult{}, true, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if !found {
		return CheckoutResult{}, false, nil
	}

	switch {
	case saga.State.HasOrder():
		order, err := s.db.GetOrder(ctx, saga.OrderID)
		if err != nil {
			return CheckoutResult{}, true, fmt.Errorf("load replayed order: %w", err)
		}
		s.logger.Info("checkout replayed", zap.String("saga_id", saga.ID), zap.String("order_id", order.ID))
		return CheckoutResult{Order: order, Replayed: true}, true, nil

	case saga.State == domain.SagaStateAborted:
		if err := s.db.ReleaseIdempotencyKey(ctx, saga.ID); err != nil {
			return CheckoutResult{}, true, fmt.Errorf("release idempotency key: %w", err)
		}
		return CheckoutResult{}, false, nil

	case saga.Flagged:
		cause := errors.New(saga.Failure)
		entries, err := s.db.ListEntriesByReference(ctx, saga.ID)
		if err != nil {
			s.logger.Error("failed to load entries of flagged saga", zap.String("saga_id", saga.ID), zap.Error(err))
			cause = errors.Join(cause, fmt.Errorf("list saga entries: %w", err))
		}
		return CheckoutResult{}, true, &domain.PersistencePartialFailureError{
			SagaID:   saga.ID,
			MemberID: memberID,
			Entries:  entries,
			Err:      cause,
		}
	}

	return CheckoutResult{}, true, &domain.ConcurrencyConflictError{Resource: "checkout saga " + saga.ID}
}

// run executes the validate and commit passes with every item lock held.
func (s *CheckoutService) run(ctx context.Context, log *zap.Logger, saga domain.Saga, lines []domain.CartLine) (domain.Order, error) {
	if err := s.setState(ctx, saga.ID, domain.SagaStateValidating, ""); err != nil {
		return domain.Order{}, err
	}

	itemIDs := make([]string, len(lines))
	for i, l := range lines {
		itemIDs[i] = l.ItemID
	}
	items, err := s.db.GetItems(ctx, itemIDs)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load items: %w", err)
	}

	for _, l := range lines {
		item, ok := items[l.ItemID]
		if !ok {
			return domain.Order{}, domain.NewNotFoundError("item", l.ItemID)
		}
		if l.Quantity > item.Quantity {
			return domain.Order{}, &domain.InsufficientStockError{ItemID: l.ItemID, Available: item.Quantity, Requested: l.Quantity}
		}
	}

	if err := s.setState(ctx, saga.ID, domain.SagaStateDecrementing, ""); err != nil {
		return domain.Order{}, err
	}

	movements := make([]domain.Movement, len(lines))
	for i, l := range lines {
		movements[i] = domain.Movement{
			ItemID:      l.ItemID,
			Direction:   domain.DirectionOut,
			Quantity:    l.Quantity,
			Reason:      domain.ReasonSale,
			PerformedBy: saga.MemberID,
			ReferenceID: saga.ID,
		}
	}

	entries, err := s.ledger.commit(ctx, movements)

	// stock may have moved, so a caller going away must not strand the saga
	ctx, cancel := s.detach(ctx)
	defer cancel()

	if err != nil {
		return domain.Order{}, s.commitFailure(ctx, log, saga, err)
	}

	orderLines := make([]domain.OrderLine, len(lines))
	for i, l := range lines {
		item := items[l.ItemID]
		orderLines[i] = domain.OrderLine{ItemID: item.ID, Name: item.Name, Price: item.Price, Quantity: l.Quantity}
	}
	order := domain.NewOrder(uuid.NewString(), saga.MemberID, saga.ID, orderLines, s.now())

	if err := s.db.CreateOrder(ctx, order); err != nil {
		partial := &domain.PersistencePartialFailureError{SagaID: saga.ID, MemberID: saga.MemberID, Entries: entries, Err: err}
		s.reportPartial(ctx, log, partial)
		return domain.Order{}, partial
	}

	return order, nil
}

// commitFailure decides what a failed ledger commit means for the saga. Domain
// errors roll the whole batch back, but an infrastructure error on commit can
// hide a transaction that did land.
func (s *CheckoutService) commitFailure(ctx context.Context, log *zap.Logger, saga domain.Saga, err error) error {
	var (
		insufficient *domain.InsufficientStockError
		conflict     *domain.ConcurrencyConflictError
	)
	if errors.As(err, &insufficient) || errors.As(err, &conflict) ||
		errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}

	entries, lookupErr := s.db.ListEntriesByReference(ctx, saga.ID)
	if lookupErr != nil || len(entries) > 0 {
		partial := &domain.PersistencePartialFailureError{SagaID: saga.ID, MemberID: saga.MemberID, Entries: entries, Err: err}
		s.reportPartial(ctx, log, partial)
		return partial
	}
	return err
}

func (s *CheckoutService) reportPartial(ctx context.Context, log *zap.Logger, partial *domain.PersistencePartialFailureError) {
	logPartial(log, partial)

	// the saga stays in DECREMENTING for the recovery pass
	if err := s.db.UpdateSagaState(ctx, partial.SagaID, domain.SagaStateDecrementing, "", partial.Error()); err != nil {
		log.Error("failed to record saga failure", zap.Error(err))
	}
}

func logPartial(log *zap.Logger, partial *domain.PersistencePartialFailureError) {
	movements := make([]string, len(partial.Entries))
	for i, e := range partial.Entries {
		movements[i] = fmt.Sprintf("%s:%d->%d", e.ItemID, e.PreviousStock, e.NewStock)
	}
	log.Error("stock committed without an order, manual reconciliation required",
		zap.Strings("entries", movements),
		zap.Error(partial.Err),
	)
}

func (s *CheckoutService) abort(ctx context.Context, log *zap.Logger, saga domain.Saga, cause error) {
	log.Info("checkout aborted", zap.Error(cause))

	if err := s.db.UpdateSagaState(ctx, saga.ID, domain.SagaStateAborted, "", cause.Error()); err != nil {
		log.Error("failed to abort saga", zap.Error(err))
	}
}

// finish records the remaining saga steps. The order already exists, so
// failures here are logged and left to the recovery pass.
func (s *CheckoutService) finish(ctx context.Context, log *zap.Logger, saga domain.Saga, order domain.Order) {
	log = log.With(zap.String("order_id", order.ID))

	if err := s.db.UpdateSagaState(ctx, saga.ID, domain.SagaStateOrderCreated, order.ID, ""); err != nil {
		log.Warn("failed to record order creation", zap.Error(err))
		return
	}

	if err := s.carts.DeleteCart(ctx, saga.MemberID); err != nil {
		log.Warn("failed to clear cart", zap.Error(err))
		return
	}
	if err := s.db.UpdateSagaState(ctx, saga.ID, domain.SagaStateCartCleared, order.ID, ""); err != nil {
		log.Warn("failed to record cart clear", zap.Error(err))
		return
	}

	if err := s.db.UpdateSagaState(ctx, saga.ID, domain.SagaStateDone, order.ID, ""); err != nil {
		log.Warn("failed to complete saga", zap.Error(err))
		return
	}

	log.Info("checkout completed", zap.String("total", order.TotalPrice.StringFixed(2)))
}

// detach keeps the values of ctx but drops its cancellation, bounded by
// FinishTimeout instead.
func (s *CheckoutService) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinishTimeout)
}

func (s *CheckoutService) setState(ctx context.Context, sagaID string, state domain.SagaState, orderID string) error {
	if err := s.db.UpdateSagaState(ctx, sagaID, state, orderID, ""); err != nil {
		return fmt.Errorf("saga %s to %s: %w", sagaID, state, err)
	}
	return nil
}
