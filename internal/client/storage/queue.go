package storage

import (
	"context"
	"time"

	"github.com/iudanet/coachsync/internal/models"
)

// QueueStorage is the durable sync_queue.
// Items are keyed by ID with a unique secondary index on PayloadHash and an
// ordering index on (Timestamp, Seq).
type QueueStorage interface {
	// InsertItem assigns item.Seq and persists the item unless another item
	// already has the same PayloadHash; in that case the existing item is
	// returned and nothing is written.
	InsertItem(ctx context.Context, item *models.QueueItem) (existing *models.QueueItem, err error)

	// GetItem returns ErrItemNotFound if the item does not exist.
	GetItem(ctx context.Context, id string) (*models.QueueItem, error)

	// UpdateItem overwrites an existing item, moving its hash index entry if
	// PayloadHash changed. Returns ErrDuplicateHash on a hash collision.
	UpdateItem(ctx context.Context, item *models.QueueItem) error

	// DeleteItem removes the item and its index entries. Returns ErrItemNotFound if missing.
	DeleteItem(ctx context.Context, id string) error

	// ListItems returns every item in FIFO order.
	ListItems(ctx context.Context) ([]*models.QueueItem, error)

	// DueItems returns items with RetryCount < maxRetries whose NextRetryAt is
	// unset or not after now, in FIFO order.
	DueItems(ctx context.Context, now time.Time, maxRetries int) ([]*models.QueueItem, error)

	// DeadLetterItems returns items with RetryCount >= maxRetries in FIFO order.
	DeadLetterItems(ctx context.Context, maxRetries int) ([]*models.QueueItem, error)

	// CountItems returns pending and dead-lettered counts.
	CountItems(ctx context.Context, maxRetries int) (models.QueueStats, error)

	// ResetDeadLetters clears the retry state of every dead-lettered item and
	// returns how many were reset.
	ResetDeadLetters(ctx context.Context, maxRetries int) (int, error)
}

// Tx exposes entity and queue operations inside a single atomic transaction.
type Tx interface {
	GetEntity(table models.Table, id string) (*models.Entity, error)
	PutEntity(entity *models.Entity) error
	DeleteEntity(table models.Table, id string) error
	QueryEntities(table models.Table, match models.EntityPredicate) ([]*models.Entity, error)

	InsertItem(item *models.QueueItem) (*models.QueueItem, error)
	GetItem(id string) (*models.QueueItem, error)
	UpdateItem(item *models.QueueItem) error
	DeleteItem(id string) error
	ListItems() ([]*models.QueueItem, error)
}

// Transactor runs fn atomically. Queue readers never observe a partially
// applied Update.
type Transactor interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}
