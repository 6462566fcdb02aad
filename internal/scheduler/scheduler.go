// Package scheduler invokes the alert pipeline on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/flow-alert-service/internal/pipeline"
)

// Runner runs one evaluation over every active user.
type Runner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// Scheduler fires the runner on a cron spec. A tick that arrives while the
// previous run is still going is skipped, so runs never overlap.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	runTimeout time.Duration
	logger     *slog.Logger

	running sync.Mutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates spec and registers the run. runTimeout bounds each run; zero
// means unbounded.
func New(spec string, runner Runner, runTimeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		runner:     runner,
		runTimeout: runTimeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "next_run", s.Next())
}

// RunNow starts one run in the background outside the schedule. It is
// skipped if a run is already going. Stop waits for it like a scheduled run.
func (s *Scheduler) RunNow() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick()
	}()
}

// Next returns the next scheduled fire time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop halts new ticks and waits for in-flight runs to finish. When ctx
// expires first the runs are cancelled, and Stop still returns only after
// they have.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("run still in flight at shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.logger.Warn("run skipped, previous run still in flight")
		return
	}
	defer s.running.Unlock()

	ctx := s.ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run finished",
		"run_id", result.RunID,
		"users_processed", result.UsersProcessed,
		"rejected", result.Rejected(),
		"next_run", s.Next(),
	)
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
