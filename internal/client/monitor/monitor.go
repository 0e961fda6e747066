// Package monitor keeps the sync processor active: it reacts to connectivity
// transitions and runs a periodic heartbeat as a safety net.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/iudanet/coachsync/internal/client/state"
	"github.com/iudanet/coachsync/internal/clock"
)

// Default intervals
const (
	DefaultHeartbeat    = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Trigger wakes the sync processor.
type Trigger interface {
	TriggerSync()
}

// DueChecker reports whether any queue item is eligible for delivery now.
type DueChecker interface {
	HasDueItems(ctx context.Context) (bool, error)
}

// Prober checks that the backend is reachable.
type Prober interface {
	Health(ctx context.Context) error
}

// Config configures a Monitor. A zero ProbeInterval or a nil Prober disables probing.
type Config struct {
	Heartbeat     time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Monitor drives the processor from connectivity events and the heartbeat.
type Monitor struct {
	state   *state.SyncState
	clock   clock.Clock
	trigger Trigger
	due     DueChecker
	prober  Prober
	logger  *slog.Logger
	cfg     Config
}

// NewMonitor creates a monitor. prober may be nil.
func NewMonitor(
	st *state.SyncState,
	clk clock.Clock,
	trigger Trigger,
	due DueChecker,
	prober Prober,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		state:   st,
		clock:   clk,
		trigger: trigger,
		due:     due,
		prober:  prober,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetOnline records a connectivity notification. Going online triggers a pass
// immediately; going offline only clears the flag, and a running pass checks it
// before taking the next item.
func (m *Monitor) SetOnline(online bool) {
	if !m.state.SetOnline(online) {
		return
	}
	if online {
		m.logger.Info("connectivity restored, triggering sync")
		m.trigger.TriggerSync()
		return
	}
	m.logger.Info("connectivity lost")
}

// Heartbeat triggers a pass if online, idle and some item is due.
func (m *Monitor) Heartbeat(ctx context.Context) {
	if !m.state.IsOnline() || m.state.IsSyncing() {
		return
	}
	due, err := m.due.HasDueItems(ctx)
	if err != nil {
		m.logger.Warn("heartbeat: failed to check due items", "error", err)
		return
	}
	if due {
		m.logger.Debug("heartbeat: due items found, triggering sync")
		m.trigger.TriggerSync()
	}
}

// Probe runs one health check and feeds the result into SetOnline.
func (m *Monitor) Probe(ctx context.Context) {
	if m.prober == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	err := m.prober.Health(pctx)
	if err != nil && ctx.Err() != nil {
		// остановка, а не потеря сети
		return
	}
	if err != nil {
		m.logger.Debug("health probe failed", "error", err)
	}
	m.SetOnline(err == nil)
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	heartbeat := m.clock.NewTicker(m.cfg.Heartbeat)
	defer heartbeat.Stop()

	// начальная проверка выполняется и при выключенном периодическом опросе
	m.Probe(ctx)

	var probeC <-chan time.Time
	if m.prober != nil && m.cfg.ProbeInterval > 0 {
		probe := m.clock.NewTicker(m.cfg.ProbeInterval)
		defer probe.Stop()
		probeC = probe.C()
	}

	m.logger.Info("sync monitor started",
		"heartbeat", m.cfg.Heartbeat,
		"probe_interval", m.cfg.ProbeInterval,
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("sync monitor stopped")
			return nil
		case <-heartbeat.C():
			m.Heartbeat(ctx)
		case <-probeC:
			m.Probe(ctx)
		}
	}
}
