package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Priority is a coarse scheduling hint.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// DefaultMaxRetries is the retry budget after which an item is dead-lettered.
const DefaultMaxRetries = 5

// CorrelationHeader carries QueueItem.CorrelationID on every delivery.
const CorrelationHeader = "Correlation-Id"

// QueueItem представляет отложенную сетевую операцию в sync_queue.
type QueueItem struct {
	Timestamp     time.Time         // время постановки в очередь, основной FIFO ключ
	NextRetryAt   *time.Time        // nil = доступен немедленно
	Operation     Operation         // доменный смысл запроса (context)
	Headers       map[string]string // сохраненные заголовки запроса
	ID            string
	CorrelationID string // отправляется в Correlation-Id для дедупликации на сервере
	PayloadHash   string // hash(method, url, body)
	Method        string
	URL           string
	LastError     string
	Priority      Priority
	Body          []byte
	Seq           uint64 // порядок вставки, разрешает равные Timestamp
	RetryCount    int
}

// queueItemJSON is the storage representation of QueueItem.
type queueItemJSON struct {
	Timestamp     time.Time         `json:"timestamp"`
	NextRetryAt   *time.Time        `json:"next_retry_at,omitempty"`
	Context       *operationJSON    `json:"context,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	PayloadHash   string            `json:"payload_hash"`
	Method        string            `json:"method"`
	URL           string            `json:"url"`
	LastError     string            `json:"last_error,omitempty"`
	Priority      Priority          `json:"priority"`
	Body          []byte            `json:"body,omitempty"`
	Seq           uint64            `json:"seq"`
	RetryCount    int               `json:"retry_count"`
}

// MarshalJSON encodes the item with its operation as a tagged context bag.
func (q QueueItem) MarshalJSON() ([]byte, error) {
	ctx, err := encodeOperation(q.Operation)
	if err != nil {
		return nil, fmt.Errorf("queue item %s: %w", q.ID, err)
	}
	return json.Marshal(queueItemJSON{
		Timestamp:     q.Timestamp,
		NextRetryAt:   q.NextRetryAt,
		Context:       ctx,
		Headers:       q.Headers,
		ID:            q.ID,
		CorrelationID: q.CorrelationID,
		PayloadHash:   q.PayloadHash,
		Method:        q.Method,
		URL:           q.URL,
		LastError:     q.LastError,
		Priority:      q.Priority,
		Body:          q.Body,
		Seq:           q.Seq,
		RetryCount:    q.RetryCount,
	})
}

// UnmarshalJSON decodes an item written by MarshalJSON.
func (q *QueueItem) UnmarshalJSON(data []byte) error {
	var raw queueItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	op, err := decodeOperation(raw.Context)
	if err != nil {
		return fmt.Errorf("queue item %s: %w", raw.ID, err)
	}

	*q = QueueItem{
		Timestamp:     raw.Timestamp,
		NextRetryAt:   raw.NextRetryAt,
		Operation:     op,
		Headers:       raw.Headers,
		ID:            raw.ID,
		CorrelationID: raw.CorrelationID,
		PayloadHash:   raw.PayloadHash,
		Method:        raw.Method,
		URL:           raw.URL,
		LastError:     raw.LastError,
		Priority:      raw.Priority,
		Body:          raw.Body,
		Seq:           raw.Seq,
		RetryCount:    raw.RetryCount,
	}
	return nil
}

// Clone returns a deep copy of the item.
func (q *QueueItem) Clone() *QueueItem {
	clone := *q
	if q.NextRetryAt != nil {
		next := *q.NextRetryAt
		clone.NextRetryAt = &next
	}
	if q.Headers != nil {
		clone.Headers = make(map[string]string, len(q.Headers))
		for k, v := range q.Headers {
			clone.Headers[k] = v
		}
	}
	if q.Body != nil {
		clone.Body = append([]byte(nil), q.Body...)
	}
	return &clone
}

// IsDeadLettered reports whether the retry budget is exhausted.
func (q *QueueItem) IsDeadLettered(maxRetries int) bool {
	return q.RetryCount >= maxRetries
}

// IsDue reports whether the item may be attempted at now.
func (q *QueueItem) IsDue(now time.Time, maxRetries int) bool {
	if q.IsDeadLettered(maxRetries) {
		return false
	}
	return q.NextRetryAt == nil || !q.NextRetryAt.After(now)
}

// IsCreation reports whether the item creates an entity.
func (q *QueueItem) IsCreation() bool {
	_, ok := q.Operation.(EntityCreate)
	return ok
}

// ResetRetries clears the failure bookkeeping, making the item eligible again.
func (q *QueueItem) ResetRetries() {
	q.RetryCount = 0
	q.NextRetryAt = nil
	q.LastError = ""
}

// ReplaceIdentifier rewrites oldID to newID in the url path segments, the body
// and the operation context. Returns true if the item was modified; the caller
// is responsible for recomputing PayloadHash.
func (q *QueueItem) ReplaceIdentifier(oldID, newID string) bool {
	if oldID == "" || oldID == newID {
		return false
	}

	changed := false
	if rewritten, ok := replacePathSegment(q.URL, oldID, newID); ok {
		q.URL = rewritten
		changed = true
	}
	if bytes.Contains(q.Body, []byte(oldID)) {
		q.Body = bytes.ReplaceAll(q.Body, []byte(oldID), []byte(newID))
		changed = true
	}
	if op, ok := ReplaceOperationID(q.Operation, oldID, newID); ok {
		q.Operation = op
		changed = true
	}
	return changed
}

// replacePathSegment replaces path segments equal to oldID. Query and fragment
// are left untouched.
func replacePathSegment(rawURL, oldID, newID string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, false
	}

	segments := strings.Split(u.Path, "/")
	changed := false
	for i, seg := range segments {
		if seg == oldID {
			segments[i] = newID
			changed = true
		}
	}
	if !changed {
		return rawURL, false
	}

	u.Path = strings.Join(segments, "/")
	u.RawPath = ""
	return u.String(), true
}

// QueueStats are the externally visible queue counters.
type QueueStats struct {
	Pending int // items still inside the retry budget (due or backed off)
	Failed  int // dead-lettered items
}
