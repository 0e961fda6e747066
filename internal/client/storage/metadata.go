package storage

import (
	"context"
	"time"
)

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// SaveLastSyncAt saves the time of the last pass that emptied the due set
	SaveLastSyncAt(ctx context.Context, at time.Time) error

	// GetLastSyncAt returns the zero time if no pass has completed yet
	GetLastSyncAt(ctx context.Context) (time.Time, error)
}
