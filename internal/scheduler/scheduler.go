// Package scheduler runs the pipeline on a fixed interval inside the
// process. Failures surface only through logs and the run ledger.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/lock"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/models"
)

var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultInterval is the default time between runs.
	DefaultInterval = 24 * time.Hour

	// tickLockKey guards against several scheduled processes running the
	// same tick.
	tickLockKey = "scheduler:tick"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, trigger string) (*models.RunReport, error)
}

// Config holds scheduler settings.
type Config struct {
	Interval time.Duration
	// RunOnStart runs once immediately instead of waiting a full interval.
	RunOnStart bool
	// LockWait bounds how long a tick waits for the tick lock before it is
	// skipped. Zero disables the lock.
	LockWait time.Duration
}

type Scheduler struct {
	runner Runner
	locker lock.Locker
	config Config

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// New builds a scheduler. locker may be nil for a single-process setup.
func New(runner Runner, locker lock.Locker, config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Scheduler{runner: runner, locker: locker, config: config}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	// Fresh channels per start, so a stopped scheduler can be started again.
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})
	s.running = true
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	logger.Infof("Starting scheduler: interval=%s run_on_start=%v", s.config.Interval, s.config.RunOnStart)
	go s.loop(ctx, stopCh, stoppedC)
	return nil
}

// Stop waits for an in-flight run to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-stoppedC:
		logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.locker != nil && s.config.LockWait > 0 {
		lockCtx, cancel := context.WithTimeout(ctx, s.config.LockWait)
		unlock, err := s.locker.Lock(lockCtx, tickLockKey)
		cancel()
		if err != nil {
			logger.L().Infow("Skipping scheduled run; another instance holds the tick", "error", err)
			return
		}
		defer unlock()
	}

	report, err := s.runner.Run(ctx, "schedule")
	if err != nil {
		logger.L().Errorw("Scheduled run failed", "kind", etlerr.Classify(err).String(), "error", err)
		return
	}
	if report != nil {
		logger.L().Infow("Scheduled run finished", "run_id", report.RunID, "status", report.Status)
	}
}
