package domain

import (
	"sort"
	"time"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

type Reason string

const (
	ReasonSale       Reason = "SALE"
	ReasonPurchase   Reason = "PURCHASE"
	ReasonAdjustment Reason = "ADJUSTMENT"
	ReasonReturn     Reason = "RETURN"
	ReasonDamage     Reason = "DAMAGE"
	ReasonExpired    Reason = "EXPIRED"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonSale, ReasonPurchase, ReasonAdjustment, ReasonReturn, ReasonDamage, ReasonExpired:
		return true
	}
	return false
}

// LedgerEntry is an immutable journal record of one stock change.
// Seq increases with every append and orders entries of the same item.
type LedgerEntry struct {
	Seq           int64     `json:"seq"`
	ID            string    `json:"id"`
	ItemID        string    `json:"itemId"`
	Direction     Direction `json:"direction"`
	Quantity      int       `json:"quantity"`
	Reason        Reason    `json:"reason"`
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
	PerformedBy   string    `json:"performedBy"`
	ReferenceID   string    `json:"referenceId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Delta is the signed quantity change of the entry.
func (e LedgerEntry) Delta() int {
	if e.Direction == DirectionOut {
		return -e.Quantity
	}
	return e.Quantity
}

// Movement is a requested stock change, turned into a LedgerEntry once applied.
type Movement struct {
	ItemID      string
	Direction   Direction
	Quantity    int
	Reason      Reason
	PerformedBy string
	ReferenceID string
}

func (m Movement) Validate() error {
	switch {
	case m.ItemID == "":
		return NewValidationError("itemId", "is required")
	case m.Direction != DirectionIn && m.Direction != DirectionOut:
		return NewValidationError("direction", "must be IN or OUT")
	case m.Quantity <= 0:
		return NewValidationError("quantity", "must be greater than zero")
	case !m.Reason.Valid():
		return NewValidationError("reason", "unknown reason "+string(m.Reason))
	case m.PerformedBy == "":
		return NewValidationError("performedBy", "is required")
	}
	return nil
}

// SortMovements orders movements by item ID. Movements of the same item keep
// their relative order.
func SortMovements(movements []Movement) []Movement {
	sorted := make([]Movement, len(movements))
	copy(sorted, movements)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })
	return sorted
}

// ReconcileReport is the result of replaying an item's journal.
type ReconcileReport struct {
	ItemID          string  `json:"itemId"`
	InitialQuantity int     `json:"initialQuantity"`
	Delta           int     `json:"delta"`
	Expected        int     `json:"expected"`
	Actual          int     `json:"actual"`
	Entries         int     `json:"entries"`
	BrokenSeqs      []int64 `json:"brokenSeqs,omitempty"`
	OK              bool    `json:"ok"`
}

// Replay checks that entries (ordered by Seq) chain from initial to actual.
func Replay(itemID string, initial, actual int, entries []LedgerEntry) ReconcileReport {
	report := ReconcileReport{
		ItemID:          itemID,
		InitialQuantity: initial,
		Actual:          actual,
		Entries:         len(entries),
	}

	running := initial
	for _, e := range entries {
		if e.PreviousStock != running || e.NewStock != e.PreviousStock+e.Delta() || e.NewStock < 0 {
			report.BrokenSeqs = append(report.BrokenSeqs, e.Seq)
		}
		report.Delta += e.Delta()
		running = e.NewStock
	}

	report.Expected = initial + report.Delta
	report.OK = report.Expected == actual && len(report.BrokenSeqs) == 0
	return report
}
