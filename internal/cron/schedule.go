package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job is one unit of scheduled maintenance, such as reaping expired holds.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Schedule tracks when each job is next due. A job with every <= 0 runs on every tick.
type Schedule struct {
	entries []*entry
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// Add registers job at the given cadence. Job names must be unique because they label logs
// and metrics.
func (s *Schedule) Add(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("job required")
	}
	for _, e := range s.entries {
		if e.job.Name() == job.Name() {
			return fmt.Errorf("job %q already scheduled", job.Name())
		}
	}
	s.entries = append(s.entries, &entry{job: job, every: every})
	return nil
}

// Due returns the jobs whose next run is at or before now, in registration order, and
// advances each of them to now+every. Jobs that were never run are always due.
func (s *Schedule) Due(now time.Time) []Job {
	var due []Job
	for _, e := range s.entries {
		if !e.next.IsZero() && now.Before(e.next) {
			continue
		}
		due = append(due, e.job)
		e.next = now.Add(e.every)
	}
	return due
}

// Jobs returns every scheduled job in registration order.
func (s *Schedule) Jobs() []Job {
	jobs := make([]Job, 0, len(s.entries))
	for _, e := range s.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}
