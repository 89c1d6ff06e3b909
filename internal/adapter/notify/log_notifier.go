package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/stockledger/internal/core/domain"
)

// LogNotifier writes alerts to the log. It is used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyLowStock(_ context.Context, alert domain.LowStockAlert) error {
	n.logger.Warn("low stock alert",
		zap.String("item_id", alert.ItemID),
		zap.String("name", alert.Name),
		zap.Int("quantity", alert.Quantity),
		zap.Int("threshold", alert.Threshold),
		zap.Int64("ledger_seq", alert.LedgerSeq),
	)
	return nil
}

func (n *LogNotifier) NotifyDigest(_ context.Context, digest domain.LowStockDigest) error {
	ids := make([]string, len(digest.Items))
	for i, item := range digest.Items {
		ids[i] = item.ItemID
	}
	n.logger.Warn("low stock digest", zap.Int("count", len(ids)), zap.Strings("item_ids", ids))
	return nil
}
