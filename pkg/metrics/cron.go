package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CronJobMetrics records run outcomes and durations for the maintenance jobs, plus cycles
// skipped because another worker held the lock. The last-success gauge lets an alert fire
// when the reservation reaper stops making progress.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	lockSkips   prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maskball_cron_job_duration_seconds",
		Help:    "Duration of cron job runs in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maskball_cron_job_runs_total",
		Help: "Cron job runs by job and outcome.",
	}, []string{"job", "outcome"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maskball_cron_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})
	lockSkips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "maskball_cron_lock_skips_total",
		Help: "Cron cycles skipped because the worker lock was unavailable.",
	})
	reg.MustRegister(duration, runs, lastSuccess, lockSkips)
	return &CronJobMetrics{duration: duration, runs: runs, lastSuccess: lastSuccess, lockSkips: lockSkips}
}

// ObserveRun records one finished job run.
func (c *CronJobMetrics) ObserveRun(job, outcome string, duration time.Duration) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(duration.Seconds())
	c.runs.WithLabelValues(job, normalizeLabel(outcome)).Inc()
	if outcome == OutcomeSuccess {
		c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

func (c *CronJobMetrics) IncLockSkipped() {
	if c == nil || c.lockSkips == nil {
		return
	}
	c.lockSkips.Inc()
}

// Runs exposes the run counter for assertions.
func (c *CronJobMetrics) Runs() *prometheus.CounterVec {
	if c == nil {
		return nil
	}
	return c.runs
}

// LockSkips exposes the lock skip counter for assertions.
func (c *CronJobMetrics) LockSkips() prometheus.Counter {
	if c == nil {
		return nil
	}
	return c.lockSkips
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
