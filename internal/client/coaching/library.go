package coaching

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

// The exercise library and the member list are read caches: they are written
// locally and never enqueued.

// UpsertExercise stores an exercise library entry, minting a local id if needed.
func (s *Service) UpsertExercise(ctx context.Context, ex *models.Exercise) (*models.Exercise, error) {
	if strings.TrimSpace(ex.Name) == "" {
		return nil, fmt.Errorf("%w: exercise name is required", ErrInvalidInput)
	}
	saved := *ex
	if saved.ID == "" {
		saved.ID = models.NewLocalID()
	}

	entity, err := s.entity(models.TableExercises, saved.ID, "", &saved, 0)
	if err != nil {
		return nil, err
	}
	if err := s.store.PutEntity(ctx, entity); err != nil {
		return nil, fmt.Errorf("failed to save exercise: %w", err)
	}
	return &saved, nil
}

// ListExercises returns the library ordered by id.
func (s *Service) ListExercises(ctx context.Context) ([]*models.Exercise, error) {
	return list[models.Exercise](ctx, s.store, models.TableExercises, models.All())
}

// CacheMembers replaces the cached member list atomically.
func (s *Service) CacheMembers(ctx context.Context, members []models.Member) error {
	entities := make([]*models.Entity, 0, len(members))
	keep := make(map[string]struct{}, len(members))
	for i := range members {
		if members[i].ID == "" {
			return fmt.Errorf("%w: member without id", ErrInvalidInput)
		}
		e, err := s.entity(models.TableMembers, members[i].ID, "", &members[i], 0)
		if err != nil {
			return err
		}
		entities = append(entities, e)
		keep[members[i].ID] = struct{}{}
	}

	return s.store.Update(ctx, func(tx storage.Tx) error {
		cached, err := tx.QueryEntities(models.TableMembers, models.All())
		if err != nil {
			return err
		}
		for _, e := range cached {
			if _, ok := keep[e.ID]; !ok {
				if err := tx.DeleteEntity(models.TableMembers, e.ID); err != nil {
					return err
				}
			}
		}
		for _, e := range entities {
			if err := tx.PutEntity(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMembers returns the cached members ordered by id.
func (s *Service) ListMembers(ctx context.Context) ([]*models.Member, error) {
	return list[models.Member](ctx, s.store, models.TableMembers, models.All())
}
