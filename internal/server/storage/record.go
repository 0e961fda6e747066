package storage

import (
	"context"

	"github.com/iudanet/coachsync/internal/models"
)

// RecordStorage persists synced coaching records. Every method is scoped to
// a user: records of other users behave as missing.
type RecordStorage interface {
	// CreateRecord inserts a record and stores result for its correlation id
	// in the same transaction. Returns ErrRecordNotFound if the parent is
	// missing and ErrDeliveryExists if the correlation id was already used.
	CreateRecord(ctx context.Context, record *models.Record, result *models.DeliveryResult) error

	// GetRecord returns ErrRecordNotFound for missing records.
	GetRecord(ctx context.Context, userID string, table models.Table, id string) (*models.Record, error)

	// ListRecords returns records of a table ordered by creation time.
	ListRecords(ctx context.Context, userID string, table models.Table) ([]*models.Record, error)

	// UpdateRecord replaces the record data.
	UpdateRecord(ctx context.Context, record *models.Record, result *models.DeliveryResult) error

	// DeleteRecord removes the record and all of its descendants.
	DeleteRecord(ctx context.Context, userID string, table models.Table, id string, result *models.DeliveryResult) error
}

// DeliveryStorage remembers results by correlation id.
type DeliveryStorage interface {
	// GetDelivery returns nil, nil when the correlation id is unknown.
	GetDelivery(ctx context.Context, userID, correlationID string) (*models.DeliveryResult, error)

	// SaveDelivery stores a result produced without a record change.
	SaveDelivery(ctx context.Context, result *models.DeliveryResult) error
}
