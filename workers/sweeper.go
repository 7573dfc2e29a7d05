package workers

import (
	"context"
	"sync"
	"time"

	"github.com/scandesk/scandesk-services-sessions/internal/logging"
	"github.com/scandesk/scandesk-services-sessions/services"
)

const sweepLeaseKey = "sessions:sweep:lease"

// Sweeper periodically removes expired sessions and their storage objects.
// A lease serializes sweeps across replicas; a replica that cannot take the
// lease skips the pass.
type Sweeper struct {
	lifecycle services.LifecycleService
	locker    Locker

	interval time.Duration
	leaseTTL time.Duration

	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(
	parent context.Context,
	lifecycle services.LifecycleService,
	locker Locker,
	interval time.Duration,
	leaseTTL time.Duration,
	l logging.Logger,
) *Sweeper {
	ctx, cancel := context.WithCancel(parent)

	return &Sweeper{
		lifecycle: lifecycle,
		locker:    locker,
		interval:  interval,
		leaseTTL:  leaseTTL,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(s.ctx)
			}
		}
	}()
}

func (s *Sweeper) runOnce(ctx context.Context) {
	acquired, err := s.locker.Acquire(ctx, sweepLeaseKey, s.leaseTTL)
	if err != nil {
		s.logger.Error("sweep lease acquisition failed", "error", err)
		return
	}
	if !acquired {
		s.logger.Debug("sweep lease held elsewhere, skipping pass")
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, sweepLeaseKey); err != nil {
			s.logger.Warn("sweep lease release failed", "error", err)
		}
	}()

	summary, err := s.lifecycle.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("sweep pass failed", "error", err)
		return
	}

	if summary.SessionsProcessed > 0 {
		s.logger.Info("sweep pass done",
			"sessions_processed", summary.SessionsProcessed,
			"files_deleted", summary.FilesDeleted,
			"file_deletion_failures", summary.FileDeletionFailures,
		)
	}
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
