package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// MetricsHook records a counter and latency histogram for every Redis
// command, labelled by command name. Pipelines are recorded as one
// "pipeline" operation rather than per command.
type MetricsHook struct{}

var _ redis.Hook = (*MetricsHook)(nil)

func observeRedisOp(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, redis.Nil) {
		status = "error"
	}
	metrics.RedisOpsTotal.WithLabelValues(operation, status).Inc()
	metrics.RedisOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RedisConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observeRedisOp(cmd.Name(), start, err)
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observeRedisOp("pipeline", start, err)
		return err
	}
}
