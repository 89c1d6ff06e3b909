package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
	"github.com/rl1809/stockledger/internal/port"
)

// CartService stages items for checkout. Stock checks here are advisory;
// the binding check happens when the cart is checked out.
type CartService struct {
	items       port.ItemRepository
	carts       port.CartRepository
	members     *Locker
	lockTimeout time.Duration
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewCartService(items port.ItemRepository, carts port.CartRepository, members *Locker, lockTimeout time.Duration, logger *zap.Logger, tracer trace.Tracer) *CartService {
	return &CartService{
		items:       items,
		carts:       carts,
		members:     members,
		lockTimeout: lockTimeout,
		logger:      logger,
		tracer:      tracer,
	}
}

func (s *CartService) Get(ctx context.Context, memberID string) (domain.Cart, error) {
	if memberID == "" {
		return domain.Cart{}, domain.NewValidationError("memberId", "is required")
	}
	return s.carts.GetCart(ctx, memberID)
}

// AddItem merges qty into the member's line for itemID. The merged quantity
// must not exceed the item's live stock.
func (s *CartService) AddItem(ctx context.Context, memberID, itemID string, qty int) (domain.Cart, error) {
	if err := validateLine(memberID, itemID, qty); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, "cart.add_item", memberID, func(ctx context.Context, cart *domain.Cart) error {
		item, err := s.items.GetItem(ctx, itemID)
		if err != nil {
			return err
		}

		existing, _ := cart.QuantityOf(itemID)
		if existing+qty > item.Quantity {
			return &domain.InsufficientStockError{ItemID: itemID, Available: item.Quantity, Requested: existing + qty}
		}

		cart.Add(itemID, qty)
		return nil
	})
}

func (s *CartService) UpdateItem(ctx context.Context, memberID, itemID string, qty int) (domain.Cart, error) {
	if err := validateLine(memberID, itemID, qty); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, "cart.update_item", memberID, func(ctx context.Context, cart *domain.Cart) error {
		if _, ok := cart.QuantityOf(itemID); !ok {
			return domain.NewNotFoundError("cart item", itemID)
		}

		item, err := s.items.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if qty > item.Quantity {
			return &domain.InsufficientStockError{ItemID: itemID, Available: item.Quantity, Requested: qty}
		}

		cart.Set(itemID, qty)
		return nil
	})
}

func (s *CartService) RemoveItem(ctx context.Context, memberID, itemID string) (domain.Cart, error) {
	if memberID == "" {
		return domain.Cart{}, domain.NewValidationError("memberId", "is required")
	}

	return s.mutate(ctx, "cart.remove_item", memberID, func(_ context.Context, cart *domain.Cart) error {
		if !cart.Remove(itemID) {
			return domain.NewNotFoundError("cart item", itemID)
		}
		return nil
	})
}

func (s *CartService) Clear(ctx context.Context, memberID string) (domain.Cart, error) {
	if memberID == "" {
		return domain.Cart{}, domain.NewValidationError("memberId", "is required")
	}

	return s.mutate(ctx, "cart.clear", memberID, func(_ context.Context, cart *domain.Cart) error {
		cart.Clear()
		return nil
	})
}

// mutate loads the cart under the member lock, applies fn and stores the
// result. Nothing is stored when fn fails.
func (s *CartService) mutate(ctx context.Context, op, memberID string, fn func(ctx context.Context, cart *domain.Cart) error) (domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID))

	unlock, err := s.members.Lock(ctx, s.lockTimeout, memberID)
	if err != nil {
		return domain.Cart{}, err
	}
	defer unlock()

	cart, err := s.carts.GetCart(ctx, memberID)
	if err != nil {
		return domain.Cart{}, err
	}

	if err := fn(ctx, &cart); err != nil {
		return domain.Cart{}, err
	}

	if cart.IsEmpty() {
		err = s.carts.DeleteCart(ctx, memberID)
	} else {
		err = s.carts.SaveCart(ctx, cart)
	}
	if err != nil {
		return domain.Cart{}, err
	}

	s.logger.Debug("cart updated", zap.String("op", op), zap.String("member_id", memberID), zap.Int("lines", len(cart.Lines)))
	return cart, nil
}

func validateLine(memberID, itemID string, qty int) error {
	switch {
	case memberID == "":
		return domain.NewValidationError("memberId", "is required")
	case itemID == "":
		return domain.NewValidationError("itemId", "is required")
	case qty <= 0:
		return domain.NewValidationError("quantity", "must be greater than zero")
	}
	return nil
}
