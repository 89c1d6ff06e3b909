package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/stockledger/internal/app"
	"github.com/rl1809/stockledger/internal/core/domain"
)

// ErrDrift is returned when at least one item's journal disagrees with its stock.
var ErrDrift = errors.New("ledger drift detected")

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [item-id]",
		Short: "Replay the journal and compare it with live stock",
		Long: `Replay the ledger of one item, or of every item when no ID is given, and
print the reports as JSON. Exits non-zero when any item has drifted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *app.Container) error {
				var (
					reports []domain.ReconcileReport
					err     error
				)
				if len(args) == 1 {
					var report domain.ReconcileReport
					report, err = c.Ledger.Reconcile(ctx, args[0])
					reports = []domain.ReconcileReport{report}
				} else {
					reports, err = c.Ledger.ReconcileAll(ctx)
				}
				if err != nil {
					return err
				}

				if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
				return driftError(reports)
			})
		},
	}
}

func driftError(reports []domain.ReconcileReport) error {
	var drifted []string
	for _, r := range reports {
		if !r.OK {
			drifted = append(drifted, r.ItemID)
		}
	}
	if len(drifted) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDrift, drifted)
}
