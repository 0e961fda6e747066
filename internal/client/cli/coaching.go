package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/coachsync/internal/client/app"
	"github.com/iudanet/coachsync/internal/client/coaching"
	"github.com/iudanet/coachsync/internal/models"
)

// Accepted layouts for time flags, interpreted in the local zone unless the
// value carries an offset.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", time.DateOnly}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use YYYY-MM-DD HH:MM or RFC3339", value)
}

func parseOptionalTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return parseTime(value)
}

// queued prints the local id and how many operations wait for delivery.
func queued(w io.Writer, what, id string, a *app.App) {
	fmt.Fprintf(w, "%s %s saved locally\n", what, id)
	fmt.Fprintf(w, "%d operation(s) pending sync\n", a.State.Snapshot().PendingCount)
}

type scheduleAddOptions struct {
	MemberID string
	Title    string
	Notes    string
	At       string
	Duration int
}

type scheduleListOptions struct {
	From string
	To   string
}

// NewScheduleCommand creates the schedule command group.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled sessions",
	}
	cmd.AddCommand(
		newScheduleAddCommand(rootOpts),
		newScheduleListCommand(rootOpts),
		newScheduleStatusCommand(rootOpts),
		newScheduleDeleteCommand(rootOpts),
	)
	return cmd
}

func newScheduleAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &scheduleAddOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a session for a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			startsAt, err := parseTime(opts.At)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				s, err := a.Coaching.CreateSchedule(ctx, coaching.ScheduleInput{
					StartsAt: startsAt,
					MemberID: opts.MemberID,
					Title:    opts.Title,
					Notes:    opts.Notes,
					Duration: opts.Duration,
				})
				if err != nil {
					return err
				}
				queued(cmd.OutOrStdout(), "Schedule", s.ID, a)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.MemberID, "member", "", "member id (required)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "session title (required)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&opts.At, "at", "", "start time, YYYY-MM-DD HH:MM or RFC3339 (required)")
	cmd.Flags().IntVar(&opts.Duration, "duration", 60, "duration in minutes")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newScheduleListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &scheduleListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules in start time order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := parseOptionalTime(opts.From)
			if err != nil {
				return err
			}
			to, err := parseOptionalTime(opts.To)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				schedules, err := a.Coaching.ListSchedules(ctx, from, to)
				if err != nil {
					return err
				}
				return rootOpts.render(cmd.OutOrStdout(), schedules, func(w io.Writer) error {
					if len(schedules) == 0 {
						_, err := fmt.Fprintln(w, "No schedules")
						return err
					}
					rows := make([]string, 0, len(schedules))
					for _, s := range schedules {
						rows = append(rows, fmt.Sprintf("%s\t%s\t%s\t%dm\t%s\t%s",
							s.ID, s.StartsAt.Local().Format("2006-01-02 15:04"), s.MemberID, s.Duration, s.Status, s.Title))
					}
					return table(w, "ID\tSTARTS\tMEMBER\tDURATION\tSTATUS\tTITLE", rows)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "only sessions starting at or after this time")
	cmd.Flags().StringVar(&opts.To, "to", "", "only sessions starting before this time")
	return cmd
}

func newScheduleStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <schedule-id> <planned|completed|cancelled|missed>",
		Short: "Change the status of a schedule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.ScheduleStatus(args[1])
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				s, err := a.Coaching.UpdateScheduleStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				queued(cmd.OutOrStdout(), "Schedule", s.ID, a)
				return nil
			})
		},
	}
}

func newScheduleDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <schedule-id>",
		Short: "Delete a schedule with its exercises and sets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				if err := a.Coaching.DeleteSchedule(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s deleted\n", args[0])
				return nil
			})
		},
	}
}

type planAddOptions struct {
	ExerciseID string
	Name       string
	Sets       int
	Reps       int
	Weight     float64
	Order      int
}

// NewPlanCommand creates the plan command group for planned exercises.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage exercises planned in a schedule",
	}

	opts := &planAddOptions{}
	add := &cobra.Command{
		Use:   "add <schedule-id>",
		Short: "Add an exercise to a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				in := coaching.PlannedExerciseInput{
					ExerciseID: opts.ExerciseID,
					Name:       opts.Name,
					Sets:       opts.Sets,
					Reps:       opts.Reps,
					Weight:     opts.Weight,
					Order:      opts.Order,
				}
				if in.Name == "" && in.ExerciseID != "" {
					name, err := libraryName(ctx, a, in.ExerciseID)
					if err != nil {
						return err
					}
					in.Name = name
				}
				pe, err := a.Coaching.AddPlannedExercise(ctx, args[0], in)
				if err != nil {
					return err
				}
				queued(cmd.OutOrStdout(), "Planned exercise", pe.ID, a)
				return nil
			})
		},
	}
	add.Flags().StringVar(&opts.ExerciseID, "exercise", "", "library exercise id")
	add.Flags().StringVar(&opts.Name, "name", "", "exercise name, defaults to the library name of --exercise")
	add.Flags().IntVar(&opts.Sets, "sets", 3, "number of sets")
	add.Flags().IntVar(&opts.Reps, "reps", 10, "repetitions per set")
	add.Flags().Float64Var(&opts.Weight, "weight", 0, "working weight")
	add.Flags().IntVar(&opts.Order, "order", 0, "position in the session")

	list := &cobra.Command{
		Use:   "list <schedule-id>",
		Short: "List the exercises of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				planned, err := a.Coaching.ListPlannedExercises(ctx, args[0])
				if err != nil {
					return err
				}
				return rootOpts.render(cmd.OutOrStdout(), planned, func(w io.Writer) error {
					if len(planned) == 0 {
						_, err := fmt.Fprintln(w, "No planned exercises")
						return err
					}
					rows := make([]string, 0, len(planned))
					for _, pe := range planned {
						rows = append(rows, fmt.Sprintf("%s\t%d\t%s\t%dx%d\t%g", pe.ID, pe.Order, pe.Name, pe.Sets, pe.Reps, pe.Weight))
					}
					return table(w, "ID\tORDER\tNAME\tSETSxREPS\tWEIGHT", rows)
				})
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// libraryName resolves an exercise name from the local library.
func libraryName(ctx context.Context, a *app.App, id string) (string, error) {
	exercises, err := a.Coaching.ListExercises(ctx)
	if err != nil {
		return "", err
	}
	for _, ex := range exercises {
		if ex.ID == id {
			return ex.Name, nil
		}
	}
	return "", fmt.Errorf("exercise %s: %w", id, coaching.ErrNotFound)
}

type setLogOptions struct {
	At     string
	Reps   int
	Weight float64
	RPE    float64
}

// NewSetCommand creates the set command group for performed sets.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Log performed sets",
	}

	opts := &setLogOptions{}
	logCmd := &cobra.Command{
		Use:   "log <planned-exercise-id>",
		Short: "Log a performed set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loggedAt, err := parseOptionalTime(opts.At)
			if err != nil {
				return err
			}
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				set, err := a.Coaching.LogSet(ctx, args[0], coaching.SetInput{
					LoggedAt: loggedAt,
					Reps:     opts.Reps,
					Weight:   opts.Weight,
					RPE:      opts.RPE,
				})
				if err != nil {
					return err
				}
				queued(cmd.OutOrStdout(), "Set", set.ID, a)
				return nil
			})
		},
	}
	logCmd.Flags().IntVar(&opts.Reps, "reps", 0, "performed repetitions (required)")
	logCmd.Flags().Float64Var(&opts.Weight, "weight", 0, "used weight")
	logCmd.Flags().Float64Var(&opts.RPE, "rpe", 0, "rate of perceived exertion, 0-10")
	logCmd.Flags().StringVar(&opts.At, "at", "", "time of the set, defaults to now")
	_ = logCmd.MarkFlagRequired("reps")

	cmd.AddCommand(logCmd)
	return cmd
}

type exerciseAddOptions struct {
	Name        string
	MuscleGroup string
	Equipment   string
}

// NewExerciseCommand creates the exercise library command group. The library
// is a local cache and is never queued for delivery.
func NewExerciseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exercise",
		Short: "Manage the local exercise library",
	}

	opts := &exerciseAddOptions{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an exercise to the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				ex, err := a.Coaching.UpsertExercise(ctx, &models.Exercise{
					Name:        opts.Name,
					MuscleGroup: opts.MuscleGroup,
					Equipment:   opts.Equipment,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exercise %s saved\n", ex.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&opts.Name, "name", "", "exercise name (required)")
	add.Flags().StringVar(&opts.MuscleGroup, "muscle", "", "primary muscle group")
	add.Flags().StringVar(&opts.Equipment, "equipment", "", "required equipment")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the exercise library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rootOpts.withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				exercises, err := a.Coaching.ListExercises(ctx)
				if err != nil {
					return err
				}
				return rootOpts.render(cmd.OutOrStdout(), exercises, func(w io.Writer) error {
					if len(exercises) == 0 {
						_, err := fmt.Fprintln(w, "Library is empty")
						return err
					}
					rows := make([]string, 0, len(exercises))
					for _, ex := range exercises {
						rows = append(rows, fmt.Sprintf("%s\t%s\t%s\t%s", ex.ID, ex.Name, ex.MuscleGroup, ex.Equipment))
					}
					return table(w, "ID\tNAME\tMUSCLE\tEQUIPMENT", rows)
				})
			})
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
