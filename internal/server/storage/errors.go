package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrRecordNotFound indicates that the record does not exist or belongs to another user
	ErrRecordNotFound = errors.New("record not found")

	// ErrRecordExists indicates a duplicate record id
	ErrRecordExists = errors.New("record already exists")

	// ErrDeliveryExists indicates that a result for the correlation id is already stored
	ErrDeliveryExists = errors.New("delivery already recorded")
)
