package boltdb

import (
	"context"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

// GetEntity retrieves an entity by table and id
func (s *Storage) GetEntity(ctx context.Context, table models.Table, id string) (*models.Entity, error) {
	var entity *models.Entity
	err := s.View(ctx, func(tx storage.Tx) error {
		var err error
		entity, err = tx.GetEntity(table, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// PutEntity stores or replaces an entity
func (s *Storage) PutEntity(ctx context.Context, entity *models.Entity) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.PutEntity(entity)
	})
}

// DeleteEntity removes an entity
func (s *Storage) DeleteEntity(ctx context.Context, table models.Table, id string) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.DeleteEntity(table, id)
	})
}

// QueryEntities returns matching entities of a table ordered by SortKey
func (s *Storage) QueryEntities(ctx context.Context, table models.Table, match models.EntityPredicate) ([]*models.Entity, error) {
	var result []*models.Entity
	err := s.View(ctx, func(tx storage.Tx) error {
		var err error
		result, err = tx.QueryEntities(table, match)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
