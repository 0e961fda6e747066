package boltdb

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

// InsertItem persists a queue item unless its payload hash is already queued
func (s *Storage) InsertItem(ctx context.Context, item *models.QueueItem) (*models.QueueItem, error) {
	var existing *models.QueueItem
	err := s.Update(ctx, func(tx storage.Tx) error {
		var err error
		existing, err = tx.InsertItem(item)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert queue item: %w", err)
	}
	return existing, nil
}

// GetItem retrieves a queue item by id
func (s *Storage) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := s.View(ctx, func(tx storage.Tx) error {
		var err error
		item, err = tx.GetItem(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem overwrites an existing queue item
func (s *Storage) UpdateItem(ctx context.Context, item *models.QueueItem) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.UpdateItem(item)
	})
}

// DeleteItem removes a queue item
func (s *Storage) DeleteItem(ctx context.Context, id string) error {
	return s.Update(ctx, func(tx storage.Tx) error {
		return tx.DeleteItem(id)
	})
}

// ListItems returns every queue item in FIFO order
func (s *Storage) ListItems(ctx context.Context) ([]*models.QueueItem, error) {
	return s.filterItems(ctx, func(*models.QueueItem) bool { return true })
}

// DueItems returns items eligible for delivery at now
func (s *Storage) DueItems(ctx context.Context, now time.Time, maxRetries int) ([]*models.QueueItem, error) {
	return s.filterItems(ctx, func(item *models.QueueItem) bool {
		return item.IsDue(now, maxRetries)
	})
}

// DeadLetterItems returns items that exhausted the retry budget
func (s *Storage) DeadLetterItems(ctx context.Context, maxRetries int) ([]*models.QueueItem, error) {
	return s.filterItems(ctx, func(item *models.QueueItem) bool {
		return item.IsDeadLettered(maxRetries)
	})
}

// CountItems returns the pending and dead-letter counters
func (s *Storage) CountItems(ctx context.Context, maxRetries int) (models.QueueStats, error) {
	var stats models.QueueStats
	items, err := s.ListItems(ctx)
	if err != nil {
		return stats, err
	}
	for _, item := range items {
		if item.IsDeadLettered(maxRetries) {
			stats.Failed++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

// ResetDeadLetters makes every dead-lettered item eligible again
func (s *Storage) ResetDeadLetters(ctx context.Context, maxRetries int) (int, error) {
	reset := 0
	err := s.Update(ctx, func(tx storage.Tx) error {
		items, err := tx.ListItems()
		if err != nil {
			return err
		}
		for _, item := range items {
			if !item.IsDeadLettered(maxRetries) {
				continue
			}
			item.ResetRetries()
			if err := tx.UpdateItem(item); err != nil {
				return err
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reset dead letters: %w", err)
	}
	return reset, nil
}

func (s *Storage) filterItems(ctx context.Context, keep func(*models.QueueItem) bool) ([]*models.QueueItem, error) {
	var result []*models.QueueItem
	err := s.View(ctx, func(tx storage.Tx) error {
		items, err := tx.ListItems()
		if err != nil {
			return err
		}
		for _, item := range items {
			if keep(item) {
				result = append(result, item)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	return result, nil
}
