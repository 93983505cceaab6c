package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/maskball-tickets/pkg/logger"
	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
)

const defaultTick = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the schedule is checked for due jobs.
	Tick time.Duration
	Now  func() time.Time
}

// Service wakes on every tick and, holding the worker lock, runs whichever jobs are due.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	schedule := params.Schedule
	if schedule == nil {
		schedule = NewSchedule()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		schedule: schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
	}, nil
}

// Run checks the schedule immediately and then on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.runCycle(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle returns the number of jobs it ran.
func (s *Service) runCycle(ctx context.Context) int {
	due := s.schedule.Due(s.now())
	if len(due) == 0 {
		return 0
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron lock acquire failed", err)
		s.metrics.IncLockSkipped()
		return 0
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance holds the lock; skipping cycle")
		s.metrics.IncLockSkipped()
		return 0
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	ran := 0
	for i, job := range due {
		s.runJob(ctx, job)
		ran++
		if i < len(due)-1 && !s.keepLock(ctx) {
			break
		}
	}
	return ran
}

// keepLock extends a renewable lock between jobs. A lost lock ends the cycle so two
// workers never run jobs side by side.
func (s *Service) keepLock(ctx context.Context) bool {
	r, ok := s.lock.(renewable)
	if !ok {
		return true
	}
	held, err := r.Extend(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron lock extend failed", err)
		return false
	}
	if !held {
		s.logg.Warn(ctx, "cron lock lost mid-cycle; remaining jobs wait for the next tick")
	}
	return held
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.ObserveRun(job.Name(), metrics.OutcomeFailure, duration)
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.ObserveRun(job.Name(), metrics.OutcomeSuccess, duration)
}
