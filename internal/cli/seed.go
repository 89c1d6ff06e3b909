package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rl1809/stockledger/internal/app"
)

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML item catalog",
		Long: `Upsert every item of a YAML catalog. New items start at their catalog
quantity; existing items keep their ledger-owned stock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := app.LoadCatalog(file)
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), rootOpts, func(ctx context.Context, c *app.Container) error {
				if err := c.Seed(ctx, catalog); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items\n", len(catalog.Items))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}
