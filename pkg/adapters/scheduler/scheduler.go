package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

type Options struct {
	Interval   time.Duration
	RunOnStart bool
	// Locker, when set, skips a trigger while another run holds the lock.
	// Without it runs may overlap and the store's uniqueness keeps them correct.
	Locker ports.RunLocker
}

// Scheduler triggers the ingestion job on a fixed interval. Every run is
// isolated: errors and panics are logged and the next tick runs as usual.
type Scheduler struct {
	job  ports.Ingestor
	opts Options
	log  *logger.Logger

	wg sync.WaitGroup
}

func New(job ports.Ingestor, opts Options, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Discard()
	}
	return &Scheduler{job: job, opts: opts, log: log}
}

// Start blocks until ctx is cancelled, then waits for in-flight runs.
// Runs are not cancelled on shutdown; the fetch timeout bounds them.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", s.opts.Interval)
	}

	s.log.WithField("interval", s.opts.Interval.String()).Info("scheduler started")
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	if s.opts.RunOnStart {
		s.trigger(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// trigger starts one run in the background. Only Start calls it, so no
// wg.Add can race the final Wait.
func (s *Scheduler) trigger(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunOnce(runCtx)
	}()
}

// RunOnce executes a single run synchronously and reports whether it ran.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", fmt.Sprint(r)).Error("ingestion run panicked")
		}
	}()

	if s.opts.Locker != nil {
		unlock, ok, err := s.opts.Locker.TryLock(ctx)
		if err != nil {
			s.log.WithError(err).Warn("could not acquire run lock, skipping")
			return false
		}
		if !ok {
			s.log.Debug("previous run still in progress, skipping")
			return false
		}
		defer unlock()
	}

	if _, err := s.job.Run(ctx); err != nil {
		// already reported by the job; the next tick retries
		s.log.WithError(err).Debug("ingestion run ended with error")
	}
	return true
}

// Wait blocks until every triggered run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
