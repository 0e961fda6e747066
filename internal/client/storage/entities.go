package storage

import (
	"context"

	"github.com/iudanet/coachsync/internal/models"
)

//go:generate moq -out entities_mock.go . EntityStorage

// EntityStorage is the local store of domain entities, one keyspace per table.
type EntityStorage interface {
	// GetEntity returns ErrEntityNotFound if no entity is stored under id.
	GetEntity(ctx context.Context, table models.Table, id string) (*models.Entity, error)

	// PutEntity upserts the entity under (entity.Table, entity.ID).
	PutEntity(ctx context.Context, entity *models.Entity) error

	// DeleteEntity removes the entity. Deleting a missing entity is not an error.
	DeleteEntity(ctx context.Context, table models.Table, id string) error

	// QueryEntities returns matching entities ordered by SortKey, then ID.
	QueryEntities(ctx context.Context, table models.Table, match models.EntityPredicate) ([]*models.Entity, error)
}
