package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iudanet/coachsync/internal/client/app"
)

// NewSyncCommand creates the sync command: one synchronous delivery pass.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued operations now",
		Long:  "Probe the server and deliver every due queued operation. Items that fail transiently stay queued with backoff.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				res, err := a.SyncNow(ctx)
				if err != nil {
					return err
				}
				view := newPassView(res, a.State.Snapshot())
				return rootOpts.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
					return executeTemplate(w, "pass", view)
				})
			})
		},
	}
}

// NewDaemonCommand creates the daemon command that keeps the sync engine
// running until interrupted.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync engine in the foreground",
		Long: "Run the retry worker and the connectivity monitor until interrupted. " +
			"The local database is locked while the daemon runs.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Syncing with %s, press Ctrl+C to stop\n", a.Config.ServerURL)
				if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
}
