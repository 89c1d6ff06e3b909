package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
// Only pending orders change status.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderStatusPending && (next == OrderStatusCompleted || next == OrderStatusCancelled)
}

// OrderLine is a snapshot of an item taken at checkout. It never follows
// later catalog edits.
type OrderLine struct {
	ItemID   string          `json:"itemId"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID         string          `json:"id"`
	MemberID   string          `json:"memberId"`
	SagaID     string          `json:"sagaId"`
	Lines      []OrderLine     `json:"items"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// NewOrder freezes the given lines into a pending order and computes its total.
func NewOrder(id, memberID, sagaID string, lines []OrderLine, now time.Time) Order {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}

	snapshot := make([]OrderLine, len(lines))
	copy(snapshot, lines)

	return Order{
		ID:         id,
		MemberID:   memberID,
		SagaID:     sagaID,
		Lines:      snapshot,
		TotalPrice: total,
		Status:     OrderStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
