package health

import (
	"context"
	"sync/atomic"
	"time"
)

// ReadinessCheck is implemented by stores and adapters that can report
// whether their backing service is reachable.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}

// Monitor polls a set of readiness checks on a fixed interval and keeps an
// aggregate flag the HTTP health endpoint reads.
type Monitor struct {
	checks       []ReadinessCheck
	interval     time.Duration
	checkTimeout time.Duration

	ready atomic.Bool
}

func NewMonitor(interval time.Duration, checks ...ReadinessCheck) *Monitor {
	return &Monitor{
		checks:       checks,
		interval:     interval,
		checkTimeout: 500 * time.Millisecond,
	}
}

// Start launches the polling loop. The monitor starts pessimistic and only
// reports ready after a full pass of passing checks.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ready.Store(m.runChecks(ctx))
			}
		}
	}()
}

func (m *Monitor) Ready() bool {
	return m.ready.Load()
}

func (m *Monitor) runChecks(ctx context.Context) bool {
	for _, c := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
		err := c.IsReady(cctx)
		cancel()

		if err != nil {
			return false
		}
	}
	return true
}
