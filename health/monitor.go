// Package health implements the Health Monitor: a per-adapter goroutine
// that periodically probes liveness and exposes an atomic healthy flag.
// The probe loop is a goroutine selecting over a ticker and a stop
// channel; golang.org/x/time/rate caps the
// probe-issue rate so a large replica group cannot stampede a struggling
// database.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"eve.evalgo.org/multidb/common"
)

// Config controls probe cadence and ceiling, mirroring health.interval and
// health.timeout.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// ProbeFunc runs one liveness check (typically SELECT 1 / driver ping)
// within the caller-supplied context deadline.
type ProbeFunc func(ctx context.Context) error

// Monitor tracks one adapter's health via periodic probes. Single-sample
// hysteresis per §4.4: one failed probe marks unhealthy, one successful
// probe marks healthy again; no flap damping at this layer.
type Monitor struct {
	database string
	role     string
	shard    string
	cfg      Config
	probe    ProbeFunc
	limiter  *rate.Limiter

	healthy   atomic.Bool
	lastCheck atomic.Int64 // unix nanos

	stopCh chan struct{}
	logger *common.ContextLogger
}

// NewMonitor constructs a Monitor in the healthy state; call Start to
// begin probing.
func NewMonitor(database, role, shard string, cfg Config, probe ProbeFunc) *Monitor {
	m := &Monitor{
		database: database,
		role:     role,
		shard:    shard,
		cfg:      cfg,
		probe:    probe,
		limiter:  rate.NewLimiter(rate.Every(cfg.Interval), 1),
		stopCh:   make(chan struct{}),
		logger:   common.ComponentLogger("health"),
	}
	m.healthy.Store(true)
	return m
}

// Start begins the periodic probe loop in its own goroutine. Cooperative
// shutdown happens via Stop, which closes the loop's stop channel.
func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckNow()
		}
	}
}

// CheckNow runs one probe outside the ticker cadence. It first waits on
// the rate limiter, which admits one probe per Interval, so a call made
// soon after another probe blocks until the limiter allows it. Tests call
// this directly instead of waiting for the ticker.
func (m *Monitor) CheckNow() {
	if err := m.limiter.Wait(context.Background()); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Timeout)
	defer cancel()

	err := m.probe(ctx)
	m.lastCheck.Store(time.Now().UnixNano())

	wasHealthy := m.healthy.Load()
	if err != nil {
		m.healthy.Store(false)
		if wasHealthy {
			m.logger.WithFields(common.ReplicaFields(m.database, m.shard, "", m.role, false)).
				WithError(err).Warn("adapter marked unhealthy")
		}
		return
	}
	m.healthy.Store(true)
	if !wasHealthy {
		m.logger.WithFields(common.ReplicaFields(m.database, m.shard, "", m.role, true)).
			Info("adapter recovered")
	}
}

// IsHealthy reports the last-known health state.
func (m *Monitor) IsHealthy() bool { return m.healthy.Load() }

// LastCheck reports the time of the last probe.
func (m *Monitor) LastCheck() time.Time {
	nanos := m.lastCheck.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Stop ends the probe loop. Safe to call once; a second call panics on
// the closed channel.
func (m *Monitor) Stop() {
	close(m.stopCh)
}
