package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

var (
	// BoltDB bucket names
	bucketAuth       = []byte("auth")
	bucketMetadata   = []byte("metadata")
	bucketEntities   = []byte("entities")         // вложенный bucket на каждую таблицу
	bucketQueue      = []byte("sync_queue")       // id -> QueueItem JSON
	bucketQueueHash  = []byte("sync_queue_hash")  // payload_hash -> id
	bucketQueueOrder = []byte("sync_queue_order") // timestamp|seq -> id
)

// lockTimeout bounds the wait for the file lock held by another process
// (a running daemon).
const lockTimeout = time.Second

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

var (
	_ storage.EntityStorage   = (*Storage)(nil)
	_ storage.QueueStorage    = (*Storage)(nil)
	_ storage.Transactor      = (*Storage)(nil)
	_ storage.AuthStorage     = (*Storage)(nil)
	_ storage.MetadataStorage = (*Storage)(nil)
)

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb %s (is the daemon running?): %w", dbPath, err)
	}

	s := &Storage{db: db}

	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketMetadata, bucketQueue, bucketQueueHash, bucketQueueOrder} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}

		entities, err := tx.CreateBucketIfNotExists(bucketEntities)
		if err != nil {
			return fmt.Errorf("failed to create entities bucket: %w", err)
		}
		for _, table := range models.Tables {
			if _, err := entities.CreateBucketIfNotExists([]byte(table)); err != nil {
				return fmt.Errorf("failed to create %s table: %w", table, err)
			}
		}

		return nil
	})
}

// Update runs fn in a read-write transaction. Any error rolls back every write made by fn.
func (s *Storage) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// View runs fn in a read-only transaction.
func (s *Storage) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}
