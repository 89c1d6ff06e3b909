package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/stockledger/internal/app"
	"github.com/rl1809/stockledger/internal/core/service"
)

// ErrFlaggedSagas is returned when recovery leaves sagas for manual repair.
var ErrFlaggedSagas = errors.New("sagas need manual reconciliation")

func NewRecoverCommand(rootOpts *RootOptions) *cobra.Command {
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Resolve checkouts that stopped mid-way",
		Long: `Scan checkout sagas that have not progressed for --stale-after and finish,
abort or flag each one. The report is printed as JSON; the command exits
non-zero when any saga was flagged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *app.Container) error {
				after := staleAfter
				if after <= 0 {
					after = c.Config.Checkout.RecoveryStaleAfter
				}

				report, err := c.Checkout.Recover(ctx, after)
				if err != nil {
					return err
				}
				flagged := report.FlaggedSagas()
				out := struct {
					service.RecoveryReport
					Flagged []string `json:"flagged"`
				}{report, flagged}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				if len(flagged) > 0 {
					return fmt.Errorf("%w: %v", ErrFlaggedSagas, flagged)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "age after which a saga counts as stuck (default from config)")

	return cmd
}
