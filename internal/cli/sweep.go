package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rl1809/stockledger/internal/app"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Send the low-stock digest once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *app.Container) error {
				digest, err := c.Monitor.Sweep(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), digest)
			})
		},
	}
}
