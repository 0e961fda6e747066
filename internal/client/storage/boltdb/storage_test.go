package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/models"
)

// newTestStorage создает временное хранилище, закрываемое по окончании теста
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	store, err := New(context.Background(), filepath.Join(t.TempDir(), "coachsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestNew_CreatesBuckets(t *testing.T) {
	store := newTestStorage(t)

	err := store.db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketAuth, bucketMetadata, bucketQueue, bucketQueueHash, bucketQueueOrder} {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		entities := tx.Bucket(bucketEntities)
		if entities == nil {
			return os.ErrNotExist
		}
		for _, table := range models.Tables {
			if entities.Bucket([]byte(table)) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "db"))
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNew_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "coachsync.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.PutEntity(ctx, &models.Entity{Table: models.TableSchedules, ID: "s1", Data: []byte(`{}`)}))
	require.NoError(t, store.Close())

	store, err = New(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	e, err := store.GetEntity(ctx, models.TableSchedules, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", e.ID)
}

func TestClosedStorage(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(t.TempDir(), "coachsync.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.GetEntity(ctx, models.TableSchedules, "x")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = store.ListItems(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)

	_, err = store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	boom := assert.AnError
	err := store.Update(ctx, func(tx storage.Tx) error {
		if err := tx.PutEntity(&models.Entity{Table: models.TableSchedules, ID: "s1", Data: []byte(`{}`)}); err != nil {
			return err
		}
		if _, err := tx.InsertItem(&models.QueueItem{ID: "i1", PayloadHash: "h1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetEntity(ctx, models.TableSchedules, "s1")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)
	_, err = store.GetItem(ctx, "i1")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestView_RejectsWrites(t *testing.T) {
	store := newTestStorage(t)

	err := store.View(context.Background(), func(tx storage.Tx) error {
		return tx.PutEntity(&models.Entity{Table: models.TableSchedules, ID: "s1"})
	})
	assert.Error(t, err)
}

func TestUpdate_CancelledContext(t *testing.T) {
	store := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Update(ctx, func(storage.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
