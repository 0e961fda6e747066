// Package queue turns desired remote effects into durable sync_queue items.
package queue

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/crypto"
	"github.com/iudanet/coachsync/internal/models"
	"github.com/iudanet/coachsync/internal/validation"
)

// ErrInvalidAction is returned for requests that could never be delivered.
var ErrInvalidAction = errors.New("invalid action")

// Action is an HTTP-shaped description of a deferred request.
type Action struct {
	Headers  map[string]string
	Method   string
	URL      string // absolute, or rooted path relative to the server
	Priority models.Priority
	Body     []byte
}

// Result of an enqueue. Duplicate means an item with the same payload hash
// was already queued and ItemID refers to it.
type Result struct {
	ItemID    string
	Duplicate bool
}

// NewItem builds a fresh queue item for action.
func NewItem(action Action, op models.Operation, now time.Time) (*models.QueueItem, error) {
	if err := validation.ValidateAction(action.Method, action.URL); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAction, err)
	}

	priority := action.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	var headers map[string]string
	if len(action.Headers) > 0 {
		headers = maps.Clone(action.Headers)
	}

	var body []byte
	if len(action.Body) > 0 {
		body = append([]byte(nil), action.Body...)
	}

	return &models.QueueItem{
		ID:            uuid.NewString(),
		CorrelationID: uuid.NewString(),
		PayloadHash:   crypto.HashPayload(action.Method, action.URL, body),
		Method:        action.Method,
		URL:           action.URL,
		Body:          body,
		Headers:       headers,
		Operation:     op,
		Priority:      priority,
		Timestamp:     now,
	}, nil
}

// Insert persists item inside tx, honoring the payload hash deduplication.
// An existing item's backoff state is never touched.
func Insert(tx storage.Tx, item *models.QueueItem) (Result, error) {
	existing, err := tx.InsertItem(item)
	if err != nil {
		return Result{}, fmt.Errorf("failed to insert queue item: %w", err)
	}
	if existing != nil {
		return Result{ItemID: existing.ID, Duplicate: true}, nil
	}
	return Result{ItemID: item.ID}, nil
}

// FindPendingCreate returns the queued creation item of (table, id), or nil.
func FindPendingCreate(tx storage.Tx, table models.Table, id string) (*models.QueueItem, error) {
	items, err := tx.ListItems()
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		create, ok := item.Operation.(models.EntityCreate)
		if ok && create.Table == table && create.LocalID == id {
			return item, nil
		}
	}
	return nil, nil
}
