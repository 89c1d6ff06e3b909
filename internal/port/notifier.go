package port

import (
	"context"

	"github.com/rl1809/stockledger/internal/core/domain"
)

//go:generate mockgen -source=notifier.go -package port -destination notifier_mock.go Notifier
type Notifier interface {
	NotifyLowStock(ctx context.Context, alert domain.LowStockAlert) error
	NotifyDigest(ctx context.Context, digest domain.LowStockDigest) error
}
