// Package resilience implements the Resilience Monitor (C7): a background
// loop that dials a handful of anycast hosts on a tick, tracks how long
// the network has been unreachable, and pauses every active scan once that
// outage crosses a threshold — resuming them after a short settle delay
// once connectivity returns. Probes dial TCP rather than shelling out to
// ping, since that needs no raw-socket privilege.
package resilience

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/storage"
)

// Pauser is the subset of the Task Queue the monitor drives during an
// outage. Satisfied by *taskqueue.Queue.
type Pauser interface {
	PauseAll()
	ResumeOutage()
}

// Monitor polls connectivity and gates scan execution through Pauser.
type Monitor struct {
	store  *storage.Store
	queue  Pauser
	log    *zap.SugaredLogger
	cfg    config.ResilienceConfig

	probeInterval time.Duration
	outageAfter   time.Duration
	resumeDelay   time.Duration
	probeTimeout  time.Duration

	offlineSince time.Time
	online       bool
}

// New constructs a Monitor from its configured durations, falling back to
// sensible defaults for any field left as the zero value or unparsable.
func New(store *storage.Store, queue Pauser, cfg config.ResilienceConfig, log *zap.SugaredLogger) *Monitor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	probes := cfg.Probes
	if len(probes) == 0 {
		probes = []string{"1.1.1.1:53", "8.8.8.8:53", "9.9.9.9:53"}
	}
	cfg.Probes = probes
	return &Monitor{
		store:         store,
		queue:         queue,
		log:           log,
		cfg:           cfg,
		probeInterval: parseDuration(cfg.ProbeInterval, 10*time.Second),
		outageAfter:   parseDuration(cfg.OutageAfter, 30*time.Second),
		resumeDelay:   parseDuration(cfg.ResumeDelay, 10*time.Second),
		probeTimeout:  parseDuration(cfg.ProbeTimeout, 3*time.Second),
		online:        true,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Run blocks, polling connectivity on probeInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	reachable := m.probeAny(ctx)
	m.handleState(reachable)
	m.recordState(reachable)
}

// probeAny dials every configured probe host in turn, retrying each once
// via backoff/v5, and reports true as soon as one succeeds.
func (m *Monitor) probeAny(ctx context.Context) bool {
	for _, addr := range m.cfg.Probes {
		op := func() (struct{}, error) {
			conn, err := net.DialTimeout("tcp", addr, m.probeTimeout)
			if err != nil {
				return struct{}{}, err
			}
			conn.Close()
			return struct{}{}, nil
		}
		if _, err := backoff.Retry(ctx, op, backoff.WithMaxTries(uint(2))); err == nil {
			return true
		}
	}
	return false
}

// handleState advances the offline_since/online state machine and triggers
// the Task Queue pause/resume gate at the configured thresholds.
func (m *Monitor) handleState(reachable bool) {
	now := time.Now()

	if reachable {
		if !m.online && !m.offlineSince.IsZero() {
			m.log.Infow("network reachable again, scheduling resume", "after", m.resumeDelay)
			go func(since time.Time) {
				time.Sleep(m.resumeDelay)
				m.queue.ResumeOutage()
			}(m.offlineSince)
		}
		m.online = true
		m.offlineSince = time.Time{}
		return
	}

	if m.offlineSince.IsZero() {
		m.offlineSince = now
		m.log.Warnw("network probe failed", "probes", m.cfg.Probes)
		return
	}

	if m.online && now.Sub(m.offlineSince) >= m.outageAfter {
		m.online = false
		m.log.Errorw("network outage threshold crossed, pausing active scans",
			"offline_since", m.offlineSince, "threshold", m.outageAfter)
		m.queue.PauseAll()
	}
}

func (m *Monitor) recordState(reachable bool) {
	status := models.NetworkOnline
	if !reachable {
		status = models.NetworkOffline
	}

	st, err := m.store.GetSystemState()
	if err != nil {
		m.log.Warnw("resilience: reading system state failed", "error", err)
		st = &models.SystemState{}
	}
	if st == nil {
		st = &models.SystemState{}
	}
	st.NetworkStatus = status
	st.UpdatedAt = time.Now()

	if err := m.store.UpsertSystemState(st); err != nil {
		m.log.Warnw("resilience: writing system state failed", "error", err)
	}
}

// TriggerPause lets an operator force a pause independent of the probe
// state — e.g. a manual "going off-grid" control-surface action.
func (m *Monitor) TriggerPause() {
	m.online = false
	m.offlineSince = time.Now()
	m.queue.PauseAll()
}

// TriggerResume lets an operator force scans back out of an outage pause
// without waiting for the probe loop to observe connectivity return.
func (m *Monitor) TriggerResume() {
	m.online = true
	m.offlineSince = time.Time{}
	m.queue.ResumeOutage()
}
