package boltdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

func newItem(id, hash string, ts time.Time) *models.QueueItem {
	return &models.QueueItem{
		ID:            id,
		CorrelationID: "corr-" + id,
		PayloadHash:   hash,
		Method:        "POST",
		URL:           "/api/v1/schedules",
		Body:          []byte(`{"member":"m1"}`),
		Operation:     models.EntityCreate{Table: models.TableSchedules, LocalID: "local_" + id},
		Priority:      models.PriorityNormal,
		Timestamp:     ts,
	}
}

func insert(t *testing.T, store *Storage, item *models.QueueItem) {
	t.Helper()
	existing, err := store.InsertItem(context.Background(), item)
	require.NoError(t, err)
	require.Nil(t, existing)
}

func itemIDs(items []*models.QueueItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestStorage_InsertAndGetItem(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	item := newItem("i1", "h1", t0)
	insert(t, store, item)
	assert.NotZero(t, item.Seq)

	got, err := store.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, item.Operation, got.Operation)
	assert.Equal(t, item.Body, got.Body)
	assert.True(t, t0.Equal(got.Timestamp))

	_, err = store.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestStorage_InsertDuplicateHash(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	first := newItem("i1", "same", t0)
	insert(t, store, first)

	existing, err := store.InsertItem(ctx, newItem("i2", "same", t0.Add(time.Second)))
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "i1", existing.ID)

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"i1"}, itemIDs(items))
}

func TestStorage_InsertRequiresIDAndHash(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.InsertItem(context.Background(), &models.QueueItem{ID: "x"})
	assert.Error(t, err)
}

func TestStorage_ListItemsFIFO(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	insert(t, store, newItem("late", "h1", t0.Add(2*time.Second)))
	insert(t, store, newItem("tie-a", "h2", t0))
	insert(t, store, newItem("tie-b", "h3", t0))
	insert(t, store, newItem("early", "h4", t0.Add(-time.Second)))

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, itemIDs(items))
}

func TestStorage_DueItems(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	now := t0.Add(time.Minute)
	later := now.Add(time.Second)
	earlier := now.Add(-time.Second)

	backingOff := newItem("backing-off", "h1", t0)
	backingOff.RetryCount = 1
	backingOff.NextRetryAt = &later

	elapsed := newItem("elapsed", "h2", t0.Add(time.Second))
	elapsed.RetryCount = 2
	elapsed.NextRetryAt = &earlier

	dead := newItem("dead", "h3", t0.Add(2*time.Second))
	dead.RetryCount = models.DefaultMaxRetries

	fresh := newItem("fresh", "h4", t0.Add(3*time.Second))

	for _, item := range []*models.QueueItem{backingOff, elapsed, dead, fresh} {
		insert(t, store, item)
	}

	due, err := store.DueItems(ctx, now, models.DefaultMaxRetries)
	require.NoError(t, err)
	assert.Equal(t, []string{"elapsed", "fresh"}, itemIDs(due))

	failed, err := store.DeadLetterItems(ctx, models.DefaultMaxRetries)
	require.NoError(t, err)
	assert.Equal(t, []string{"dead"}, itemIDs(failed))

	stats, err := store.CountItems(ctx, models.DefaultMaxRetries)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Pending: 3, Failed: 1}, stats)
}

func TestStorage_UpdateItem(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	item := newItem("i1", "h1", t0)
	insert(t, store, item)

	next := t0.Add(time.Second)
	item.RetryCount = 1
	item.NextRetryAt = &next
	item.LastError = "status 503"
	require.NoError(t, store.UpdateItem(ctx, item))

	got, err := store.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "status 503", got.LastError)

	assert.ErrorIs(t, store.UpdateItem(ctx, newItem("missing", "hx", t0)), storage.ErrItemNotFound)
}

func TestStorage_UpdateItemMovesHashIndex(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	item := newItem("i1", "old-hash", t0)
	insert(t, store, item)
	insert(t, store, newItem("i2", "taken", t0))

	item.PayloadHash = "new-hash"
	require.NoError(t, store.UpdateItem(ctx, item))

	// the old hash is free again, the new one is owned by i1
	insert(t, store, newItem("i3", "old-hash", t0))
	existing, err := store.InsertItem(ctx, newItem("i4", "new-hash", t0))
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "i1", existing.ID)

	item.PayloadHash = "taken"
	assert.ErrorIs(t, store.UpdateItem(ctx, item), storage.ErrDuplicateHash)
}

func TestStorage_DeleteItem(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	insert(t, store, newItem("i1", "h1", t0))
	require.NoError(t, store.DeleteItem(ctx, "i1"))

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	// hash index entry is released
	insert(t, store, newItem("i2", "h1", t0))

	assert.ErrorIs(t, store.DeleteItem(ctx, "i1"), storage.ErrItemNotFound)
}

func TestStorage_ResetDeadLetters(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	next := t0.Add(time.Hour)
	dead := newItem("dead", "h1", t0)
	dead.RetryCount = models.DefaultMaxRetries
	dead.NextRetryAt = &next
	dead.LastError = "status 500"
	insert(t, store, dead)

	pending := newItem("pending", "h2", t0)
	pending.RetryCount = 2
	pending.NextRetryAt = &next
	insert(t, store, pending)

	n, err := store.ResetDeadLetters(ctx, models.DefaultMaxRetries)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetItem(ctx, "dead")
	require.NoError(t, err)
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.NextRetryAt)
	assert.Empty(t, got.LastError)

	untouched, err := store.GetItem(ctx, "pending")
	require.NoError(t, err)
	assert.Equal(t, 2, untouched.RetryCount)
}
