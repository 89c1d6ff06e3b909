package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rl1809/stockledger/internal/app"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		Long: `Run the HTTP and gRPC APIs together with the low-stock monitor workers,
the periodic low-stock sweep and the checkout recovery pass. SIGINT or
SIGTERM shuts everything down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withContainer(ctx, rootOpts, func(ctx context.Context, c *app.Container) error {
				return c.Serve(ctx)
			})
		},
	}
}
