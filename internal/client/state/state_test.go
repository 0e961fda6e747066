package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/coachsync/internal/models"
)

func TestSyncState_SingleFlight(t *testing.T) {
	s := New(true)

	require.True(t, s.TryBeginSync())
	assert.False(t, s.TryBeginSync())
	assert.True(t, s.IsSyncing())

	s.EndSync()
	assert.False(t, s.IsSyncing())
	assert.True(t, s.TryBeginSync())
}

func TestSyncState_SingleFlightConcurrent(t *testing.T) {
	s := New(true)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBeginSync() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestSyncState_SetOnlineReportsTransitions(t *testing.T) {
	s := New(false)

	assert.True(t, s.SetOnline(true))
	assert.False(t, s.SetOnline(true))
	assert.True(t, s.IsOnline())
	assert.True(t, s.SetOnline(false))
}

func TestSyncState_Counts(t *testing.T) {
	s := New(true)
	s.SetCounts(models.QueueStats{Pending: 3, Failed: 1})

	snap := s.Snapshot()
	assert.Equal(t, 3, snap.PendingCount)
	assert.Equal(t, 1, snap.FailedCount)
}

func TestSyncState_SubscribeDeliversLatest(t *testing.T) {
	s := New(false)
	updates, cancel := s.Subscribe()
	defer cancel()

	initial := <-updates
	assert.False(t, initial.IsOnline)

	s.SetOnline(true)
	s.SetCounts(models.QueueStats{Pending: 2})
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	s.SetLastSyncAt(at)

	latest := <-updates
	assert.True(t, latest.IsOnline)
	assert.Equal(t, 2, latest.PendingCount)
	assert.Equal(t, at, latest.LastSyncAt)

	select {
	case <-updates:
		t.Fatal("only the latest snapshot should be buffered")
	default:
	}
}

func TestSyncState_CancelClosesChannel(t *testing.T) {
	s := New(true)
	updates, cancel := s.Subscribe()
	<-updates

	cancel()
	cancel()

	_, ok := <-updates
	assert.False(t, ok)

	// publishing after cancel must not panic
	s.SetOnline(false)
}
