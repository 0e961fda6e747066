package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/coachsync/internal/client/storage"
)

var keyLastSyncAt = []byte("last_sync_at")

// SaveLastSyncAt saves the time of the last completed pass
func (s *Storage) SaveLastSyncAt(ctx context.Context, at time.Time) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// unix millis, big endian
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, uint64(at.UnixMilli()))

		if err := bucket.Put(keyLastSyncAt, value); err != nil {
			return fmt.Errorf("failed to save last sync time: %w", err)
		}
		return nil
	})
}

// GetLastSyncAt returns the zero time if no pass has completed yet
func (s *Storage) GetLastSyncAt(ctx context.Context) (time.Time, error) {
	if s.db == nil {
		return time.Time{}, storage.ErrStorageClosed
	}

	var at time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		value := bucket.Get(keyLastSyncAt)
		if value == nil {
			return nil
		}
		at = time.UnixMilli(int64(binary.BigEndian.Uint64(value)))
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}

	return at, nil
}
