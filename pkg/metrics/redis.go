package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	RedisOutcomeOK    = "ok"
	RedisOutcomeMiss  = "miss"
	RedisOutcomeError = "error"
)

// RedisMetrics times Redis commands. A miss is a GET or similar that found no key, which
// the revocation and idempotency lookups treat as a normal answer.
type RedisMetrics struct {
	duration *prometheus.HistogramVec
}

func NewRedisMetrics(reg prometheus.Registerer) *RedisMetrics {
	if reg == nil {
		return &RedisMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maskball_redis_command_duration_seconds",
		Help:    "Redis command latency by command name and outcome.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.25, 1},
	}, []string{"command", "outcome"})
	reg.MustRegister(duration)
	return &RedisMetrics{duration: duration}
}

func (m *RedisMetrics) Observe(command, outcome string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(command, outcome).Observe(elapsed.Seconds())
}
