// Package state holds the observable sync status shared by the queue manager,
// the processor and the monitor.
package state

import (
	"sync"
	"time"

	"github.com/iudanet/coachsync/internal/models"
)

// Snapshot is a point-in-time copy of the sync status.
type Snapshot struct {
	LastSyncAt   time.Time
	PendingCount int
	FailedCount  int
	IsSyncing    bool
	IsOnline     bool
}

// Observer is the read-only view handed to the presentation layer.
type Observer interface {
	Snapshot() Snapshot
	// Subscribe delivers the latest snapshot after every change. Slow readers
	// only ever see the most recent value. cancel closes the channel.
	Subscribe() (updates <-chan Snapshot, cancel func())
}

// SyncState владеет флагами isSyncing/isOnline и счетчиками очереди.
// Один экземпляр на клиент, внедряется в Manager, Processor и Monitor.
type SyncState struct {
	subs   map[int]chan Snapshot
	snap   Snapshot
	nextID int
	mu     sync.Mutex
}

var _ Observer = (*SyncState)(nil)

// New returns a state with the given initial connectivity.
func New(online bool) *SyncState {
	return &SyncState{
		snap: Snapshot{IsOnline: online},
		subs: make(map[int]chan Snapshot),
	}
}

// Snapshot returns the current status.
func (s *SyncState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// IsOnline reports the last known connectivity.
func (s *SyncState) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.IsOnline
}

// IsSyncing reports whether a pass is running.
func (s *SyncState) IsSyncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.IsSyncing
}

// SetOnline records connectivity and reports whether it changed.
func (s *SyncState) SetOnline(online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.IsOnline == online {
		return false
	}
	s.snap.IsOnline = online
	s.publishLocked()
	return true
}

// TryBeginSync is the single-flight gate: it returns false if a pass is
// already running, otherwise marks one as running.
func (s *SyncState) TryBeginSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.IsSyncing {
		return false
	}
	s.snap.IsSyncing = true
	s.publishLocked()
	return true
}

// EndSync releases the gate taken by TryBeginSync.
func (s *SyncState) EndSync() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.snap.IsSyncing {
		return
	}
	s.snap.IsSyncing = false
	s.publishLocked()
}

// SetCounts publishes the queue counters.
func (s *SyncState) SetCounts(stats models.QueueStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.PendingCount == stats.Pending && s.snap.FailedCount == stats.Failed {
		return
	}
	s.snap.PendingCount = stats.Pending
	s.snap.FailedCount = stats.Failed
	s.publishLocked()
}

// SetLastSyncAt records when the due set was last drained.
func (s *SyncState) SetLastSyncAt(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.LastSyncAt = at
	s.publishLocked()
}

// Subscribe implements Observer.
func (s *SyncState) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan Snapshot, 1)
	ch <- s.snap
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// publishLocked заменяет непрочитанное значение последним
func (s *SyncState) publishLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap
	}
}
