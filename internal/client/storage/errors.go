package storage

import "errors"

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrEntityNotFound indicates that the entity does not exist in the table
	ErrEntityNotFound = errors.New("entity not found")

	// ErrItemNotFound indicates that the queue item does not exist
	ErrItemNotFound = errors.New("queue item not found")

	// ErrDuplicateHash indicates that another queue item already has the payload hash
	ErrDuplicateHash = errors.New("queue item with the same payload hash exists")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
