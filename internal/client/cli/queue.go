package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iudanet/coachsync/internal/client/app"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the sync queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every queued operation in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				items, err := a.Store.ListItems(ctx)
				if err != nil {
					return err
				}
				views := newQueueItemViews(items, a.Processor.MaxRetries())
				return rootOpts.render(cmd.OutOrStdout(), views, func(w io.Writer) error {
					return writeQueueItems(w, views)
				})
			})
		},
	})
	return cmd
}

// NewFailedCommand creates the dead letter command group.
func NewFailedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect and retry dead-lettered operations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List operations that exhausted their retry budget",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
					items, err := a.Processor.ListFailed(ctx)
					if err != nil {
						return err
					}
					views := newQueueItemViews(items, a.Processor.MaxRetries())
					return rootOpts.render(cmd.OutOrStdout(), views, func(w io.Writer) error {
						return writeQueueItems(w, views)
					})
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Give dead-lettered operations a fresh retry budget",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
					n, err := a.Processor.ResetFailed(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Reset %d operation(s)\n", n)
					return nil
				})
			},
		},
	)
	return cmd
}
