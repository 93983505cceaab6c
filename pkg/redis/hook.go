package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/maskball-tickets/pkg/metrics"
)

// commandTimer is a go-redis hook feeding RedisMetrics.
type commandTimer struct {
	metrics *metrics.RedisMetrics
}

func (h commandTimer) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h commandTimer) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.Observe(cmd.Name(), outcome(err), time.Since(start))
		return err
	}
}

func (h commandTimer) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.metrics.Observe("pipeline", outcome(err), time.Since(start))
		return err
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.RedisOutcomeOK
	case errors.Is(err, redis.Nil):
		return metrics.RedisOutcomeMiss
	default:
		return metrics.RedisOutcomeError
	}
}
