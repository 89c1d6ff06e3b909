package domain

import "time"

type StockLevel string

const (
	StockLevelNormal StockLevel = "NORMAL"
	StockLevelLow    StockLevel = "LOW"
)

// LevelOf classifies a quantity against a threshold; at-threshold counts as low.
func LevelOf(quantity, threshold int) StockLevel {
	if quantity <= threshold {
		return StockLevelLow
	}
	return StockLevelNormal
}

// LowStockAlert is emitted once per NORMAL to LOW crossing.
type LowStockAlert struct {
	ItemID      string    `json:"itemId"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	Threshold   int       `json:"threshold"`
	LedgerSeq   int64     `json:"ledgerSeq"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

// LowStockDigest batches every item that is currently low.
type LowStockDigest struct {
	Items       []LowStockAlert `json:"items"`
	GeneratedAt time.Time       `json:"generatedAt"`
}
