package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient connects to redisURL with metrics and circuit breaking installed. Hooks run in
// the order added, so the metrics hook also observes calls the breaker rejects.
func NewClient(ctx context.Context, redisURL string, m *metrics.RedisMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	client.AddHook(NewMetricsHook(m))
	client.AddHook(NewCircuitBreakerHook(m))

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	slog.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}
