// Package scheduler triggers pipeline runs on a cron schedule and on demand, never more
// than one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/follower-snapshot/internal/pipeline"
)

var (
	// ErrRunInProgress is returned by RunNow while another run is active.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrStopped is returned by RunNow once Stop has been called.
	ErrStopped = errors.New("scheduler stopped")
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// Status describes the scheduler for the admin API.
type Status struct {
	Running      bool             `json:"running"`
	Runs         int              `json:"runs"`
	LastReport   *pipeline.Report `json:"last_report,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
	LastFinished time.Time        `json:"last_finished,omitempty"`
	NextRun      time.Time        `json:"next_run,omitempty"`
}

// Scheduler owns the cron instance and the single-run guard.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	runner  Runner
	logger  *zap.Logger
	baseCtx context.Context
	cancel  context.CancelFunc

	gate   chan struct{}
	active sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	status  Status
}

// New parses spec (six fields, seconds first) in loc and prepares a Scheduler.
func New(spec string, loc *time.Location, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		runner:  runner,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
		gate:    make(chan struct{}, 1),
	}
	id, err := c.AddFunc(spec, s.tick)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Time("next_run", s.cron.Entry(s.entry).Next))
}

// Stop prevents new runs, cancels the active one (scheduled or manual) and waits for it
// until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	cronDone := s.cron.Stop()
	s.cancel()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for active run: %w", ctx.Err())
	}
}

// RunNow executes a run immediately unless one is already active. The run is canceled
// when ctx is done or the scheduler stops.
func (s *Scheduler) RunNow(ctx context.Context) (pipeline.Report, error) {
	select {
	case s.gate <- struct{}{}:
	default:
		return pipeline.Report{}, ErrRunInProgress
	}
	defer func() { <-s.gate }()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return pipeline.Report{}, ErrStopped
	}
	s.active.Add(1)
	s.status.Running = true
	s.mu.Unlock()
	defer s.active.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	report, err := s.runner.Run(ctx)

	s.mu.Lock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastReport = &report
	s.status.LastFinished = time.Now()
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()
	return report, err
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	st.NextRun = s.cron.Entry(s.entry).Next
	return st
}

func (s *Scheduler) tick() {
	if _, err := s.RunNow(s.baseCtx); err != nil {
		if errors.Is(err, ErrRunInProgress) || errors.Is(err, ErrStopped) {
			s.logger.Warn("scheduled run skipped", zap.Error(err))
			return
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct{ *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
