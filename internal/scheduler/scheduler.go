// Package scheduler runs the daily job on a cron schedule in the report zone.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks. A job still running when its next
// activation fires is not started twice.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	log     *logger.Logger

	// parent of every job context, cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

// New creates a scheduler evaluating schedules in loc. Each run is bounded by timeout.
func New(loc *time.Location, timeout time.Duration, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Get()
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    c,
		timeout: timeout,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]cron.EntryID),
	}
}

// AddJob adds a job with a cron schedule
// schedule format: "15 0 * * *" (at 00:15 daily)
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, s.wrap(name, job))
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[name] = entryID
	s.mu.Unlock()

	s.log.Info().Str("job", name).Str("schedule", schedule).Msg("scheduler: job added")
	return nil
}

// Next returns the next activation of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

// Start starts the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling, cancels the context of running jobs and waits
// for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	s.cancel()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler: stopped before running jobs finished")
	}
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		activation := uuid.NewString()
		s.log.Info().Str("job", name).Str("activation", activation).Msg("scheduler: starting job")
		start := time.Now()

		if err := job(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Str("activation", activation).Msg("scheduler: job failed")
			return
		}
		s.log.Info().
			Str("job", name).
			Str("activation", activation).
			Dur("took", time.Since(start)).
			Msg("scheduler: job completed")
	}
}

// cronLogger adapts the logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
