package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iudanet/coachsync/internal/client/app"
)

type credentialsOptions struct {
	Username string
}

// readCredentials returns the username from the flag or a prompt and the
// master password. confirm asks for the password twice when prompting.
func (o *RootOptions) readCredentials(username string, confirm bool) (string, string, error) {
	if username == "" {
		var err error
		username, err = o.IO.ReadInput("Username: ")
		if err != nil {
			return "", "", fmt.Errorf("failed to read username: %w", err)
		}
	}

	interactive := !o.hasNonInteractivePassword()
	password, err := o.masterPassword()
	if err != nil {
		return "", "", err
	}
	if confirm && interactive {
		again, err := o.IO.ReadPassword("Confirm master password: ")
		if err != nil {
			return "", "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		if again != password {
			return "", "", errors.New("passwords do not match")
		}
	}
	return username, password, nil
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialsOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new coach account",
		Long:  "Register a new account on the server. The master password never leaves this machine.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := rootOpts.readCredentials(opts.Username, true)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				res, err := a.Auth.Register(ctx, username, password)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Registration successful")
				fmt.Fprintf(out, "User ID:  %s\n", res.UserID)
				fmt.Fprintf(out, "Username: %s\n", res.Username)
				fmt.Fprintln(out, "Remember your master password: it cannot be recovered.")
				fmt.Fprintln(out, "Run 'coachsync login' to start syncing.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "account name")
	return cmd
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialsOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the encrypted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := rootOpts.readCredentials(opts.Username, false)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				st, err := a.Auth.Login(ctx, username, password)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Logged in as %s\n", st.Username)
				fmt.Fprintf(out, "Session expires: %s\n", formatTime(timePtr(st.ExpiresAt)))
				if n := a.State.Snapshot().PendingCount; n > 0 {
					fmt.Fprintf(out, "%d queued operation(s) waiting, run 'coachsync sync'\n", n)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "account name")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Long:  "Remove the stored session. Queued operations stay and are delivered after the next login.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				if err := a.Auth.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and queue status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				st, err := a.Auth.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to read session: %w", err)
				}
				view := newStatusView(a.Config.ServerURL, st, a.State.Snapshot())
				return rootOpts.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
					return executeTemplate(w, "status", view)
				})
			})
		},
	}
}
