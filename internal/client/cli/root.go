// Package cli implements the coachsync command line on top of the client app.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/coachsync/internal/client/app"
	"github.com/iudanet/coachsync/internal/client/iocli"
	"github.com/iudanet/coachsync/internal/config"
	"github.com/iudanet/coachsync/internal/logging"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "yaml"}

// RootOptions holds global flags and the state built by the root command
// before any subcommand runs.
type RootOptions struct {
	ServerURL          string
	DBPath             string
	LogLevel           string
	MasterPassword     string
	MasterPasswordFile string
	Format             string

	IO     iocli.IO
	Config *config.Config
	Logger *slog.Logger

	logCloser io.Closer
}

// NewRootCommand creates the root command of the coachsync client.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "coachsync",
		Short:         "Offline-first coaching client",
		Long:          "Manage schedules, planned exercises and set logs locally and deliver them to the server when it is reachable.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if opts.logCloser != nil {
				return opts.logCloser.Close()
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ServerURL, "server", "", "server URL (overrides COACHSYNC_SERVER_URL)")
	flags.StringVar(&opts.DBPath, "db", "", "path to the local database (overrides COACHSYNC_DB_PATH)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.MasterPassword, "master-password", "", "master password (not recommended, use env var or file)")
	flags.StringVar(&opts.MasterPasswordFile, "master-password-file", "", "path to a file containing the master password")
	flags.StringVarP(&opts.Format, "output", "o", "text", "output format (text|yaml)")

	cmd.AddCommand(
		NewRegisterCommand(opts),
		NewLoginCommand(opts),
		NewLogoutCommand(opts),
		NewStatusCommand(opts),
		NewSyncCommand(opts),
		NewDaemonCommand(opts),
		NewQueueCommand(opts),
		NewFailedCommand(opts),
		NewScheduleCommand(opts),
		NewPlanCommand(opts),
		NewSetCommand(opts),
		NewExerciseCommand(opts),
	)

	return cmd
}

// setup loads the configuration, applies flag overrides and builds the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	if o.Config == nil {
		o.Config = config.Load()
	}
	if o.ServerURL != "" {
		o.Config.ServerURL = o.ServerURL
	}
	if o.DBPath != "" {
		o.Config.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		o.Config.LogLevel = o.LogLevel
	}

	if o.IO == nil {
		o.IO = iocli.New(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	if o.Logger == nil {
		logger, closer, err := logging.New(logging.Options{
			Level:  o.Config.LogLevel,
			Format: o.Config.LogFormat,
			File:   o.Config.LogFile,
		})
		if err != nil {
			return err
		}
		o.Logger, o.logCloser = logger, closer
	}
	return nil
}

// withApp opens the client app for the duration of fn. With unlock set the
// stored session is decrypted first.
func (o *RootOptions) withApp(ctx context.Context, unlock bool, fn func(ctx context.Context, a *app.App) error) (err error) {
	a, err := app.Open(ctx, o.Config, o.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if unlock {
		st, err := a.Auth.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to read session: %w", err)
		}
		if !st.LoggedIn {
			return errors.New("not authenticated, run 'coachsync login' first")
		}
		password, err := o.masterPassword()
		if err != nil {
			return err
		}
		if err := a.Unlock(ctx, password); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

// masterPassword retrieves the master password with priority:
// 1. COACHSYNC_MASTER_PASSWORD (through the configuration)
// 2. --master-password-file
// 3. --master-password
// 4. Interactive prompt
func (o *RootOptions) masterPassword() (string, error) {
	if o.Config.MasterPassword != "" {
		return o.Config.MasterPassword, nil
	}

	if o.MasterPasswordFile != "" {
		content, err := os.ReadFile(o.MasterPasswordFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", errors.New("password file is empty")
		}
		return password, nil
	}

	if o.MasterPassword != "" {
		return o.MasterPassword, nil
	}

	password, err := o.IO.ReadPassword("Master password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	return password, nil
}

// hasNonInteractivePassword reports whether masterPassword will not prompt.
func (o *RootOptions) hasNonInteractivePassword() bool {
	return o.Config.MasterPassword != "" || o.MasterPasswordFile != "" || o.MasterPassword != ""
}
