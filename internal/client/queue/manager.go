package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/coachsync/internal/client/state"
	"github.com/iudanet/coachsync/internal/client/storage"
	"github.com/iudanet/coachsync/internal/clock"
	"github.com/iudanet/coachsync/internal/metrics"
	"github.com/iudanet/coachsync/internal/models"
)

// DefaultDebounce is the delay between an enqueue and the processor wake-up.
const DefaultDebounce = 100 * time.Millisecond

// Store is the persistence the manager needs.
type Store interface {
	storage.QueueStorage
	storage.Transactor
}

// Trigger wakes the sync processor.
type Trigger interface {
	TriggerSync()
}

// Config configures a Manager.
type Config struct {
	Debounce   time.Duration
	MaxRetries int
}

// Manager is the enqueue API of the sync queue.
type Manager struct {
	store   Store
	state   *state.SyncState
	clock   clock.Clock
	trigger Trigger
	metrics metrics.SyncMetrics
	logger  *slog.Logger
	timer   clock.Timer // ожидающий debounce таймер, nil если нет
	cfg     Config
	mu      sync.Mutex
	closed  bool
}

// NewManager creates a queue manager.
func NewManager(
	store Store,
	st *state.SyncState,
	clk clock.Clock,
	trigger Trigger,
	cfg Config,
	m metrics.SyncMetrics,
	logger *slog.Logger,
) *Manager {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = models.DefaultMaxRetries
	}
	if m == nil {
		m = metrics.NoOp{}
	}
	return &Manager{
		store:   store,
		state:   st,
		clock:   clk,
		trigger: trigger,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Enqueue persists a durable intent for action. It never blocks on the network.
func (m *Manager) Enqueue(ctx context.Context, action Action, op models.Operation) (Result, error) {
	return m.Apply(ctx, action, op, nil)
}

// Apply runs the optimistic local mutation and the enqueue in one transaction.
// mutate may be nil. The mutation is applied even when the enqueue is a duplicate.
func (m *Manager) Apply(
	ctx context.Context,
	action Action,
	op models.Operation,
	mutate func(tx storage.Tx) error,
) (Result, error) {
	item, err := NewItem(action, op, m.clock.Now())
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = m.store.Update(ctx, func(tx storage.Tx) error {
		if mutate != nil {
			if err := mutate(tx); err != nil {
				return err
			}
		}
		res, err = Insert(tx, item)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to enqueue %s %s: %w", action.Method, action.URL, err)
	}

	if res.Duplicate {
		m.metrics.RecordEnqueue(ctx, "duplicate")
		m.logger.Debug("duplicate enqueue ignored",
			"item_id", res.ItemID,
			"method", action.Method,
			"url", action.URL,
		)
		return res, nil
	}

	m.metrics.RecordEnqueue(ctx, "queued")
	m.logger.Debug("item enqueued",
		"item_id", item.ID,
		"correlation_id", item.CorrelationID,
		"method", item.Method,
		"url", item.URL,
	)

	m.RefreshCounts(ctx)
	m.schedule(item.Priority)
	return res, nil
}

// FindPendingCreate returns the still-queued creation item of the entity, or nil.
func (m *Manager) FindPendingCreate(ctx context.Context, table models.Table, id string) (*models.QueueItem, error) {
	var found *models.QueueItem
	err := m.store.View(ctx, func(tx storage.Tx) error {
		var err error
		found, err = FindPendingCreate(tx, table, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find pending create: %w", err)
	}
	return found, nil
}

// CancelPendingCreate removes the queued creation of a not yet promoted entity
// together with queued updates of it, so that no delete needs to be sent.
// mutate (may be nil) runs in the same transaction, typically the local delete.
// It returns false, without running mutate, if id was already promoted or no
// creation item is queued; the caller must then enqueue a regular delete.
func (m *Manager) CancelPendingCreate(
	ctx context.Context,
	table models.Table,
	id string,
	mutate func(tx storage.Tx) error,
) (bool, error) {
	if !models.IsLocalID(id) {
		return false, nil
	}

	cancelled := false
	dropped := 0
	err := m.store.Update(ctx, func(tx storage.Tx) error {
		create, err := FindPendingCreate(tx, table, id)
		if err != nil || create == nil {
			return err
		}

		items, err := tx.ListItems()
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Operation == nil || item.Operation.EntityTable() != table || item.Operation.EntityID() != id {
				continue
			}
			if err := tx.DeleteItem(item.ID); err != nil {
				return err
			}
			dropped++
		}

		if mutate != nil {
			if err := mutate(tx); err != nil {
				return err
			}
		}
		cancelled = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel pending create of %s: %w", id, err)
	}

	if cancelled {
		m.metrics.RecordEnqueue(ctx, "cancelled")
		m.logger.Info("pending create cancelled",
			"table", string(table),
			"entity_id", id,
			"dropped_items", dropped,
		)
		m.RefreshCounts(ctx)
	}
	return cancelled, nil
}

// RefreshCounts republishes queue counters to the sync state.
func (m *Manager) RefreshCounts(ctx context.Context) {
	stats, err := m.store.CountItems(ctx, m.cfg.MaxRetries)
	if err != nil {
		m.logger.Warn("failed to count queue items", "error", err)
		return
	}
	m.state.SetCounts(stats)
}

// schedule arms the debounce timer if online. The timer is not re-armed by
// later enqueues, so a burst produces one wake-up at most Debounce after its
// first item. High priority items wake the processor immediately.
func (m *Manager) schedule(priority models.Priority) {
	if !m.state.IsOnline() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if priority == models.PriorityHigh {
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.trigger.TriggerSync()
		return
	}
	if m.timer != nil {
		return
	}
	m.timer = m.clock.AfterFunc(m.cfg.Debounce, m.fire)
}

func (m *Manager) fire() {
	m.mu.Lock()
	m.timer = nil
	closed := m.closed
	m.mu.Unlock()

	if closed || !m.state.IsOnline() {
		return
	}
	m.trigger.TriggerSync()
}

// Close stops the pending debounce timer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
