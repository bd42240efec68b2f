/*
monitor.go - Background line status monitor

PURPOSE:
  Periodically checks whether counter reports are still arriving and logs
  online/offline transitions, so a silent PLC shows up in the logs even
  when nobody has the dashboard open.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Caches the latest LineStatus; GET /api/production-status refreshes it
  - Logs only on state changes (online -> offline and back)

USAGE:
  monitor := NewLineMonitor(reports, resolver, 10*time.Minute)
  monitor.Interval = time.Minute
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - production/status.go: StatusOf and Reports.LineStatus
  - cmd/server/serve.go: runs the monitor next to the HTTP server
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/shift"
)

const defaultMonitorInterval = time.Minute

// LineMonitor tracks whether the line is online.
type LineMonitor struct {
	Interval time.Duration

	reports   *production.Reports
	resolver  *shift.Resolver
	threshold time.Duration

	mu     sync.Mutex
	last   *production.LineStatus
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLineMonitor creates a monitor; call Start or Run to begin ticking.
func NewLineMonitor(reports *production.Reports, resolver *shift.Resolver, threshold time.Duration) *LineMonitor {
	return &LineMonitor{
		Interval:  defaultMonitorInterval,
		reports:   reports,
		resolver:  resolver,
		threshold: threshold,
	}
}

// Start runs the monitor in a background goroutine until Stop.
func (m *LineMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Run(ctx)
	}()
}

// Stop halts a monitor started with Start and waits for it to exit.
func (m *LineMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
}

// Run checks immediately, then every Interval until ctx is done.
func (m *LineMonitor) Run(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	log := logger.Named("monitor")
	log.Info().Dur("interval", interval).Dur("threshold", m.threshold).Msg("line monitor started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			m.RunNow(ctx)
		case <-ctx.Done():
			log.Info().Msg("line monitor stopped")
			return nil
		}
	}
}

// RunNow performs one check and logs failures instead of returning them.
func (m *LineMonitor) RunNow(ctx context.Context) {
	if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
		logger.Named("monitor").Error().Err(err).Msg("line status check failed")
	}
}

// Check computes the current status, caches it and logs transitions.
func (m *LineMonitor) Check(ctx context.Context) (production.LineStatus, error) {
	st, err := m.reports.LineStatus(ctx, m.resolver, m.threshold)
	if err != nil {
		return production.LineStatus{}, err
	}

	m.mu.Lock()
	prev := m.last
	m.last = &st
	m.mu.Unlock()

	if prev == nil || prev.State != st.State {
		evt := logger.Named("monitor").Info()
		if st.State == production.LineOffline && st.ShiftActive {
			evt = logger.Named("monitor").Warn()
		}
		if st.LastActivity != nil {
			evt = evt.Time("last_activity", *st.LastActivity)
		}
		evt.Str("state", string(st.State)).
			Bool("shift_active", st.ShiftActive).
			Msg("line status changed")
	}
	return st, nil
}

// Last returns the cached status from the most recent check.
func (m *LineMonitor) Last() (production.LineStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return production.LineStatus{}, false
	}
	return *m.last, true
}
