// Package coaching applies coach actions optimistically to the local store and
// enqueues the matching server requests.
package coaching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/iudanet/coachsync/internal/client/queue"
	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/pkg/api"
)

var (
	// ErrNotFound is returned when the referenced entity is not in the local store.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for input the server would reject.
	ErrInvalidInput = errors.New("invalid input")
)

// Enqueuer is the queue manager API used by the service.
type Enqueuer interface {
	Apply(ctx context.Context, action queue.Action, op models.Operation, mutate func(tx storage.Tx) error) (queue.Result, error)
	CancelPendingCreate(ctx context.Context, table models.Table, id string, mutate func(tx storage.Tx) error) (bool, error)
}

// Store is the local store used for reads and cache writes.
type Store interface {
	storage.EntityStorage
	storage.Transactor
}

// Service implements the coaching use cases on top of the sync queue.
type Service struct {
	queue  Enqueuer
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates a coaching service.
func NewService(q Enqueuer, store Store, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{queue: q, store: store, clock: clk, logger: logger}
}

// ScheduleInput describes a new session.
type ScheduleInput struct {
	StartsAt time.Time
	MemberID string
	Title    string
	Notes    string
	Duration int // минуты
}

// CreateSchedule stores the schedule under a local id and enqueues its creation.
func (s *Service) CreateSchedule(ctx context.Context, in ScheduleInput) (*models.Schedule, error) {
	if in.MemberID == "" || strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: member and title are required", ErrInvalidInput)
	}
	if in.StartsAt.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}
	if in.Duration < 0 {
		return nil, fmt.Errorf("%w: negative duration", ErrInvalidInput)
	}

	schedule := &models.Schedule{
		ID:       models.NewLocalID(),
		MemberID: in.MemberID,
		Title:    strings.TrimSpace(in.Title),
		Notes:    in.Notes,
		StartsAt: in.StartsAt.UTC(),
		Duration: in.Duration,
		Status:   models.ScheduleStatusPlanned,
	}

	body, err := json.Marshal(api.ScheduleRequest{
		ClientID: schedule.ID,
		MemberID: schedule.MemberID,
		Title:    schedule.Title,
		Notes:    schedule.Notes,
		StartsAt: schedule.StartsAt,
		Duration: schedule.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule: %w", err)
	}

	entity, err := s.entity(models.TableSchedules, schedule.ID, "", schedule, schedule.StartsAt.UnixMilli())
	if err != nil {
		return nil, err
	}

	_, err = s.queue.Apply(ctx,
		jsonAction(http.MethodPost, api.PathSchedules, body),
		models.EntityCreate{Table: models.TableSchedules, LocalID: schedule.ID},
		func(tx storage.Tx) error { return tx.PutEntity(entity) },
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("schedule created", "schedule_id", schedule.ID, "member_id", schedule.MemberID)
	return schedule, nil
}

// PlannedExerciseInput describes an exercise added to a schedule.
type PlannedExerciseInput struct {
	ExerciseID string
	Name       string
	Sets       int
	Reps       int
	Weight     float64
	Order      int
}

// AddPlannedExercise adds a child exercise to a schedule. The request refers to
// the schedule by its current id, which is rewritten if the schedule is promoted
// before delivery.
func (s *Service) AddPlannedExercise(ctx context.Context, scheduleID string, in PlannedExerciseInput) (*models.PlannedExercise, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: exercise name is required", ErrInvalidInput)
	}
	if in.Sets <= 0 || in.Reps <= 0 {
		return nil, fmt.Errorf("%w: sets and reps must be positive", ErrInvalidInput)
	}

	planned := &models.PlannedExercise{
		ID:         models.NewLocalID(),
		ScheduleID: scheduleID,
		ExerciseID: in.ExerciseID,
		Name:       strings.TrimSpace(in.Name),
		Sets:       in.Sets,
		Reps:       in.Reps,
		Weight:     in.Weight,
		Order:      in.Order,
	}

	body, err := json.Marshal(api.PlannedExerciseRequest{
		ClientID:   planned.ID,
		ScheduleID: planned.ScheduleID,
		ExerciseID: planned.ExerciseID,
		Name:       planned.Name,
		Sets:       planned.Sets,
		Reps:       planned.Reps,
		Weight:     planned.Weight,
		Order:      planned.Order,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal planned exercise: %w", err)
	}

	entity, err := s.entity(models.TablePlannedExercises, planned.ID, scheduleID, planned, int64(planned.Order))
	if err != nil {
		return nil, err
	}

	_, err = s.queue.Apply(ctx,
		jsonAction(http.MethodPost, api.ScheduleExercisesPath(scheduleID), body),
		models.EntityCreate{Table: models.TablePlannedExercises, LocalID: planned.ID, ParentID: scheduleID},
		func(tx storage.Tx) error {
			if err := requireEntity(tx, models.TableSchedules, scheduleID); err != nil {
				return err
			}
			return tx.PutEntity(entity)
		},
	)
	if err != nil {
		return nil, err
	}
	return planned, nil
}

// SetInput describes a performed set.
type SetInput struct {
	LoggedAt time.Time
	Reps     int
	Weight   float64
	RPE      float64
}

// LogSet records a performed set of a planned exercise.
func (s *Service) LogSet(ctx context.Context, plannedExerciseID string, in SetInput) (*models.SetLog, error) {
	if in.Reps <= 0 {
		return nil, fmt.Errorf("%w: reps must be positive", ErrInvalidInput)
	}
	if in.RPE < 0 || in.RPE > 10 {
		return nil, fmt.Errorf("%w: rpe must be between 0 and 10", ErrInvalidInput)
	}
	loggedAt := in.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = s.clock.Now()
	}

	set := &models.SetLog{
		ID:                models.NewLocalID(),
		PlannedExerciseID: plannedExerciseID,
		LoggedAt:          loggedAt.UTC(),
		Reps:              in.Reps,
		Weight:            in.Weight,
		RPE:               in.RPE,
	}

	body, err := json.Marshal(api.SetLogRequest{
		ClientID:          set.ID,
		PlannedExerciseID: set.PlannedExerciseID,
		LoggedAt:          set.LoggedAt,
		Reps:              set.Reps,
		Weight:            set.Weight,
		RPE:               set.RPE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal set log: %w", err)
	}

	entity, err := s.entity(models.TableSetLogs, set.ID, plannedExerciseID, set, set.LoggedAt.UnixMilli())
	if err != nil {
		return nil, err
	}

	_, err = s.queue.Apply(ctx,
		jsonAction(http.MethodPost, api.PlannedExerciseSetsPath(plannedExerciseID), body),
		models.EntityCreate{Table: models.TableSetLogs, LocalID: set.ID, ParentID: plannedExerciseID},
		func(tx storage.Tx) error {
			if err := requireEntity(tx, models.TablePlannedExercises, plannedExerciseID); err != nil {
				return err
			}
			return tx.PutEntity(entity)
		},
	)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// UpdateScheduleStatus changes the status locally and enqueues the update.
func (s *Service) UpdateScheduleStatus(ctx context.Context, id string, status models.ScheduleStatus) (*models.Schedule, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	body, err := json.Marshal(api.ScheduleStatusRequest{Status: string(status)})
	if err != nil {
		return nil, err
	}

	var updated models.Schedule
	_, err = s.queue.Apply(ctx,
		jsonAction(http.MethodPatch, api.SchedulePath(id), body),
		models.StatusUpdate{Table: models.TableSchedules, ID: id, Status: string(status)},
		func(tx storage.Tx) error {
			// читаем внутри транзакции: ID мог быть повышен до серверного
			entity, err := tx.GetEntity(models.TableSchedules, id)
			if errors.Is(err, storage.ErrEntityNotFound) {
				return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
			}
			if err != nil {
				return err
			}
			if err := entity.Decode(&updated); err != nil {
				return fmt.Errorf("failed to decode schedule: %w", err)
			}
			updated.Status = status
			data, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			entity.Data = data
			entity.UpdatedAt = s.clock.Now()
			return tx.PutEntity(entity)
		},
	)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteSchedule removes the schedule and its children locally. A schedule
// whose creation has not been delivered yet is simply dropped from the queue;
// otherwise a DELETE is enqueued.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	removeLocally := func(tx storage.Tx) error {
		if err := requireEntity(tx, models.TableSchedules, id); err != nil {
			return err
		}
		return deleteTree(tx, models.TableSchedules, id)
	}

	cancelled, err := s.queue.CancelPendingCreate(ctx, models.TableSchedules, id, removeLocally)
	if err != nil {
		return err
	}
	if cancelled {
		s.logger.Info("schedule deleted before sync", "schedule_id", id)
		return nil
	}

	_, err = s.queue.Apply(ctx,
		queue.Action{Method: http.MethodDelete, URL: api.SchedulePath(id)},
		models.EntityDelete{Table: models.TableSchedules, ID: id},
		removeLocally,
	)
	if err != nil {
		return err
	}
	s.logger.Info("schedule deleted", "schedule_id", id)
	return nil
}

// GetSchedule returns one schedule.
func (s *Service) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	entity, err := s.store.GetEntity(ctx, models.TableSchedules, id)
	if errors.Is(err, storage.ErrEntityNotFound) {
		return nil, fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var schedule models.Schedule
	if err := entity.Decode(&schedule); err != nil {
		return nil, fmt.Errorf("failed to decode schedule: %w", err)
	}
	return &schedule, nil
}

// ListSchedules returns schedules starting in [from, to), ordered by start time.
// Zero bounds are open.
func (s *Service) ListSchedules(ctx context.Context, from, to time.Time) ([]*models.Schedule, error) {
	return list[models.Schedule](ctx, s.store, models.TableSchedules, models.InRange(from, to))
}

// ListPlannedExercises returns the exercises of a schedule in plan order.
func (s *Service) ListPlannedExercises(ctx context.Context, scheduleID string) ([]*models.PlannedExercise, error) {
	return list[models.PlannedExercise](ctx, s.store, models.TablePlannedExercises, models.ByParent(scheduleID))
}

// ListSetLogs returns the logged sets of a planned exercise in time order.
func (s *Service) ListSetLogs(ctx context.Context, plannedExerciseID string) ([]*models.SetLog, error) {
	return list[models.SetLog](ctx, s.store, models.TableSetLogs, models.ByParent(plannedExerciseID))
}

func (s *Service) entity(table models.Table, id, parentID string, v any, sortKey int64) (*models.Entity, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", table, err)
	}
	return &models.Entity{
		Table:     table,
		ID:        id,
		ParentID:  parentID,
		Data:      data,
		SortKey:   sortKey,
		UpdatedAt: s.clock.Now(),
	}, nil
}

func jsonAction(method, url string, body []byte) queue.Action {
	return queue.Action{
		Method:  method,
		URL:     url,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}
}

func requireEntity(tx storage.Tx, table models.Table, id string) error {
	_, err := tx.GetEntity(table, id)
	if errors.Is(err, storage.ErrEntityNotFound) {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return err
}

// childTables: дочерние таблицы в порядке иерархии
var childTables = map[models.Table]models.Table{
	models.TableSchedules:        models.TablePlannedExercises,
	models.TablePlannedExercises: models.TableSetLogs,
}

// deleteTree removes an entity with all descendants. Descendants still waiting
// for their creation to be delivered are dropped from the queue, since their
// parent is going away.
func deleteTree(tx storage.Tx, table models.Table, id string) error {
	if child, ok := childTables[table]; ok {
		children, err := tx.QueryEntities(child, models.ByParent(id))
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := deleteTree(tx, child, c.ID); err != nil {
				return err
			}
		}
	}

	if models.IsLocalID(id) {
		create, err := queue.FindPendingCreate(tx, table, id)
		if err != nil {
			return err
		}
		if create != nil {
			if err := tx.DeleteItem(create.ID); err != nil {
				return err
			}
		}
	}
	return tx.DeleteEntity(table, id)
}

func list[T any](ctx context.Context, store storage.EntityStorage, table models.Table, match models.EntityPredicate) ([]*T, error) {
	entities, err := store.QueryEntities(ctx, table, match)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	out := make([]*T, 0, len(entities))
	for _, e := range entities {
		var v T
		if err := e.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", table, e.ID, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
