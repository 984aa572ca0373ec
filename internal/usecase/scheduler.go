package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"MetalPulse/internal/domain/models"
	applogger "MetalPulse/pkg/logger"
)

// CycleRunner is what the scheduler drives.
type CycleRunner interface {
	Trigger(ctx context.Context, trigger string) (*models.PipelineRun, error)
}

const scheduleTrigger = "schedule"

// Scheduler runs a cycle, then waits the full interval, until stopped. Stopping
// only prevents the next cycle; an in-flight cycle runs to completion.
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool
	logger     *applogger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(runner CycleRunner, interval time.Duration, runOnStart bool, logger *applogger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 120 * time.Second
	}
	return &Scheduler{runner: runner, interval: interval, runOnStart: runOnStart, logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx, s.done)
	s.logger.Info("scheduler started", applogger.Duration("interval_ms", s.interval))
	return nil
}

// Stop cancels the loop and waits up to timeout for an in-flight cycle to finish.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-t.C:
		return fmt.Errorf("scheduler did not stop within %s", timeout)
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if !first || s.runOnStart {
			s.runOnce(ctx)
		}
		first = false

		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	// Detached so Stop does not cut the cycle short.
	run, err := s.runner.Trigger(context.WithoutCancel(ctx), scheduleTrigger)
	switch {
	case errors.Is(err, models.ErrCycleBusy):
		s.logger.Info("scheduled cycle skipped, another replica is running one")
	case err != nil:
		s.logger.Error("scheduled cycle did not run", applogger.Error(err))
	case !run.Success:
		s.logger.Warn("scheduled cycle aborted", applogger.Int("stage_errors", len(run.StageErrors)))
	}
}
