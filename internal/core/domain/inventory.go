package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a catalog entry whose Quantity is owned by the stock ledger.
// InitialQuantity is the quantity the ledger replays from.
type Item struct {
	ID                string          `json:"id" yaml:"id"`
	Name              string          `json:"name" yaml:"name"`
	Quantity          int             `json:"quantity" yaml:"quantity"`
	InitialQuantity   int             `json:"initialQuantity" yaml:"-"`
	LowStockThreshold int             `json:"lowStockThreshold" yaml:"lowStockThreshold"`
	Price             decimal.Decimal `json:"price" yaml:"price"`
	SupplierID        string          `json:"supplierId,omitempty" yaml:"supplierId"`
	CategoryID        string          `json:"categoryId,omitempty" yaml:"categoryId"`
	CreatedAt         time.Time       `json:"createdAt" yaml:"-"`
	UpdatedAt         time.Time       `json:"updatedAt" yaml:"-"`

	// LastSeq is the seq of the newest ledger entry for the item when it was read.
	LastSeq int64 `json:"-" yaml:"-"`
}

// IsLow reports whether the item is at or below its low-stock threshold.
func (i Item) IsLow() bool {
	return i.Quantity <= i.LowStockThreshold
}

func (i Item) Validate() error {
	switch {
	case i.ID == "":
		return NewValidationError("id", "is required")
	case i.Name == "":
		return NewValidationError("name", "is required")
	case i.Quantity < 0:
		return NewValidationError("quantity", "must not be negative")
	case i.LowStockThreshold < 0:
		return NewValidationError("lowStockThreshold", "must not be negative")
	case i.Price.IsNegative():
		return NewValidationError("price", "must not be negative")
	}
	return nil
}
