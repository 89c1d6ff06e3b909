package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

type OrderService struct {
	orders port.OrderRepository
	ledger *LedgerService
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderService(orders port.OrderRepository, ledger *LedgerService, logger *zap.Logger, tracer trace.Tracer) *OrderService {
	return &OrderService{
		orders: orders,
		ledger: ledger,
		logger: logger,
		tracer: tracer,
	}
}

func (s *OrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) ListByMember(ctx context.Context, memberID string) ([]domain.Order, error) {
	if memberID == "" {
		return nil, domain.NewValidationError("memberId", "is required")
	}
	return s.orders.ListOrdersByMember(ctx, memberID)
}

// UpdateStatus moves a pending order to completed or cancelled.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	switch status {
	case domain.OrderStatusCompleted:
		return s.Complete(ctx, orderID)
	case domain.OrderStatusCancelled:
		return s.Cancel(ctx, orderID)
	}
	return domain.Order{}, domain.NewValidationError("status", fmt.Sprintf("cannot move an order to %q", status))
}

func (s *OrderService) Complete(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.UpdateOrderStatus(ctx, orderID, domain.OrderStatusCompleted)
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.Info("order completed", zap.String("order_id", orderID))
	return order, nil
}

// Cancel cancels a pending order and returns its lines to stock through the
// ledger, in the same transaction as the status change.
func (s *OrderService) Cancel(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanTransition(domain.OrderStatusCancelled) {
		return domain.Order{}, domain.NewValidationError("status", fmt.Sprintf("order is %s and cannot be cancelled", order.Status))
	}

	restock := make([]domain.Movement, len(order.Lines))
	for i, l := range order.Lines {
		restock[i] = domain.Movement{
			ItemID:      l.ItemID,
			Direction:   domain.DirectionIn,
			Quantity:    l.Quantity,
			Reason:      domain.ReasonReturn,
			PerformedBy: order.MemberID,
			ReferenceID: order.ID,
		}
	}

	var (
		cancelled domain.Order
		entries   []domain.LedgerEntry
	)
	err = s.ledger.withItems(ctx, movementItems(restock), func(ctx context.Context) error {
		var err error
		cancelled, entries, err = s.orders.CancelOrder(ctx, orderID, restock)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	for _, e := range entries {
		s.ledger.observer.Observe(ctx, e)
	}

	s.logger.Info("order cancelled", zap.String("order_id", orderID), zap.Int("restocked_lines", len(entries)))
	return cancelled, nil
}
