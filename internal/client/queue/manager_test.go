package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coachsync/internal/client/state"
	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/client/storage/boltdb"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/models"
)

var epoch = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type countingTrigger struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTrigger) TriggerSync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

func (c *countingTrigger) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	store   *boltdb.Storage
	state   *state.SyncState
	clock   *clock.Fake
	trigger *countingTrigger
	manager *Manager
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:   store,
		state:   state.New(online),
		clock:   clock.NewFake(epoch),
		trigger: &countingTrigger{},
	}
	f.manager = NewManager(store, f.state, f.clock, f.trigger, Config{}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(f.manager.Close)
	return f
}

func createSchedule(localID string) (Action, models.Operation) {
	return Action{
			Method:  "POST",
			URL:     "/api/v1/schedules",
			Body:    []byte(`{"id":"` + localID + `","member":"m1"}`),
			Headers: map[string]string{"Content-Type": "application/json"},
		},
		models.EntityCreate{Table: models.TableSchedules, LocalID: localID}
}

func TestManager_EnqueuePersistsItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	action, op := createSchedule("local_abc")
	res, err := f.manager.Enqueue(ctx, action, op)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	item, err := f.store.GetItem(ctx, res.ItemID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.RetryCount)
	assert.Nil(t, item.NextRetryAt)
	assert.NotEmpty(t, item.CorrelationID)
	assert.NotEqual(t, item.ID, item.CorrelationID)
	assert.True(t, epoch.Equal(item.Timestamp))
	assert.Equal(t, models.PriorityNormal, item.Priority)
	assert.Equal(t, op, item.Operation)
	assert.Len(t, item.PayloadHash, 64)

	assert.Equal(t, 1, f.state.Snapshot().PendingCount)
}

func TestManager_EnqueueDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	action := Action{Method: "DELETE", URL: "/api/v1/schedules/srv_123"}
	op := models.EntityDelete{Table: models.TableSchedules, ID: "srv_123"}

	first, err := f.manager.Enqueue(ctx, action, op)
	require.NoError(t, err)

	// backoff state of the original survives later duplicates
	item, err := f.store.GetItem(ctx, first.ItemID)
	require.NoError(t, err)
	next := epoch.Add(time.Minute)
	item.RetryCount = 2
	item.NextRetryAt = &next
	require.NoError(t, f.store.UpdateItem(ctx, item))

	for i := 0; i < 2; i++ {
		res, err := f.manager.Enqueue(ctx, action, op)
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.Equal(t, first.ItemID, res.ItemID)
	}

	items, err := f.store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].RetryCount)
	require.NotNil(t, items[0].NextRetryAt)
}

func TestManager_EnqueueInvalidAction(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.manager.Enqueue(context.Background(), Action{Method: "TRACE", URL: "/x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestManager_DebounceCoalescesBurst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	for _, id := range []string{"local_1", "local_2", "local_3"} {
		action, op := createSchedule(id)
		_, err := f.manager.Enqueue(ctx, action, op)
		require.NoError(t, err)
		f.clock.Advance(30 * time.Millisecond)
	}
	assert.Equal(t, 0, f.trigger.Calls())

	f.clock.Advance(10 * time.Millisecond)
	assert.Equal(t, 1, f.trigger.Calls())

	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.trigger.Calls())
}

func TestManager_OfflineDoesNotTrigger(t *testing.T) {
	f := newFixture(t, false)

	action, op := createSchedule("local_1")
	_, err := f.manager.Enqueue(context.Background(), action, op)
	require.NoError(t, err)

	assert.Equal(t, 0, f.clock.PendingTimers())
	f.clock.Advance(time.Second)
	assert.Equal(t, 0, f.trigger.Calls())
}

func TestManager_WentOfflineBeforeDebounceFires(t *testing.T) {
	f := newFixture(t, true)

	action, op := createSchedule("local_1")
	_, err := f.manager.Enqueue(context.Background(), action, op)
	require.NoError(t, err)

	f.state.SetOnline(false)
	f.clock.Advance(time.Second)
	assert.Equal(t, 0, f.trigger.Calls())
}

func TestManager_HighPriorityTriggersImmediately(t *testing.T) {
	f := newFixture(t, true)

	action, op := createSchedule("local_1")
	action.Priority = models.PriorityHigh
	_, err := f.manager.Enqueue(context.Background(), action, op)
	require.NoError(t, err)

	assert.Equal(t, 1, f.trigger.Calls())
	assert.Equal(t, 0, f.clock.PendingTimers())
}

func TestManager_DuplicateDoesNotTrigger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	action, op := createSchedule("local_1")
	_, err := f.manager.Enqueue(ctx, action, op)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	require.Equal(t, 1, f.trigger.Calls())

	_, err = f.manager.Enqueue(ctx, action, op)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.trigger.Calls())
}

func TestManager_CloseStopsTimer(t *testing.T) {
	f := newFixture(t, true)

	action, op := createSchedule("local_1")
	_, err := f.manager.Enqueue(context.Background(), action, op)
	require.NoError(t, err)

	f.manager.Close()
	f.clock.Advance(time.Second)
	assert.Equal(t, 0, f.trigger.Calls())
}

func TestManager_ApplyIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	entity := &models.Entity{Table: models.TableSchedules, ID: "local_1", Data: []byte(`{}`)}
	action, op := createSchedule("local_1")

	boom := errors.New("boom")
	_, err := f.manager.Apply(ctx, action, op, func(tx storage.Tx) error {
		if err := tx.PutEntity(entity); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = f.store.GetEntity(ctx, models.TableSchedules, "local_1")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)
	items, err := f.store.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = f.manager.Apply(ctx, action, op, func(tx storage.Tx) error {
		return tx.PutEntity(entity)
	})
	require.NoError(t, err)
	_, err = f.store.GetEntity(ctx, models.TableSchedules, "local_1")
	assert.NoError(t, err)
}

func TestManager_CancelPendingCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	action, op := createSchedule("local_abc")
	created, err := f.manager.Enqueue(ctx, action, op)
	require.NoError(t, err)

	_, err = f.manager.Enqueue(ctx,
		Action{Method: "PATCH", URL: "/api/v1/schedules/local_abc", Body: []byte(`{"status":"completed"}`)},
		models.StatusUpdate{Table: models.TableSchedules, ID: "local_abc", Status: "completed"},
	)
	require.NoError(t, err)

	other, op2 := createSchedule("local_other")
	kept, err := f.manager.Enqueue(ctx, other, op2)
	require.NoError(t, err)

	found, err := f.manager.FindPendingCreate(ctx, models.TableSchedules, "local_abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ItemID, found.ID)

	mutated := false
	cancelled, err := f.manager.CancelPendingCreate(ctx, models.TableSchedules, "local_abc", func(storage.Tx) error {
		mutated = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.True(t, mutated)

	items, err := f.store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ItemID, items[0].ID)
	assert.Equal(t, 1, f.state.Snapshot().PendingCount)
}

func TestManager_CancelPendingCreateNotApplicable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	called := false
	mutate := func(storage.Tx) error {
		called = true
		return nil
	}

	// promoted id
	cancelled, err := f.manager.CancelPendingCreate(ctx, models.TableSchedules, "srv_123", mutate)
	require.NoError(t, err)
	assert.False(t, cancelled)

	// local id without a queued create
	cancelled, err = f.manager.CancelPendingCreate(ctx, models.TableSchedules, "local_gone", mutate)
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.False(t, called)

	found, err := f.manager.FindPendingCreate(ctx, models.TableSchedules, "local_gone")
	require.NoError(t, err)
	assert.Nil(t, found)
}
