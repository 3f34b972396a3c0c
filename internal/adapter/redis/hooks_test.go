package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClientFor(t *testing.T, addr string) *goredis.Client {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func failingProcess(context.Context, goredis.Cmder) error { return errors.New("redis down") }

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	for range 10 {
		require.NoError(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}

	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
	assert.Equal(t, uint32(10), hook.GetCounts().TotalSuccesses)
}

func TestCircuitBreakerHook_NilIsSuccess(t *testing.T) {
	hook := NewCircuitBreakerHook(nil)
	ctx := context.Background()

	process := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return goredis.Nil })
	for range 10 {
		err := process(ctx, goredis.NewStringCmd(ctx, "get", "missing"))
		assert.True(t, err == goredis.Nil, "redis.Nil must pass through unwrapped")
	}
	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
}

func TestCircuitBreakerHook_OpensAndFailsFast(t *testing.T) {
	redisMetrics := metrics.NewRedisMetrics(prometheus.NewRegistry())
	hook := NewCircuitBreakerHook(redisMetrics)
	ctx := context.Background()

	process := hook.ProcessHook(failingProcess)
	for range 5 {
		assert.Error(t, process(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}
	require.Equal(t, gobreaker.StateOpen, hook.GetState())
	assert.Equal(t, float64(2), testutil.ToFloat64(redisMetrics.CircuitBreakerState))

	called := false
	process = hook.ProcessHook(func(context.Context, goredis.Cmder) error {
		called = true
		return nil
	})
	err := process(ctx, goredis.NewIntCmd(ctx, "publish", "ch", "x"))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.False(t, called)
}

func TestCircuitBreakerHook_RecoversAfterTimeout(t *testing.T) {
	hook := newCircuitBreakerHook(gobreaker.Settings{
		Name:        "redis-test",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     100 * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}, nil)
	ctx := context.Background()

	failing := hook.ProcessHook(failingProcess)
	for range 3 {
		_ = failing(ctx, goredis.NewStringCmd(ctx, "get", "key"))
	}
	require.Equal(t, gobreaker.StateOpen, hook.GetState())

	time.Sleep(150 * time.Millisecond)

	ok := hook.ProcessHook(func(context.Context, goredis.Cmder) error { return nil })
	require.NoError(t, ok(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	assert.Equal(t, gobreaker.StateHalfOpen, hook.GetState())

	for range 2 {
		require.NoError(t, ok(ctx, goredis.NewStringCmd(ctx, "get", "key")))
	}
	assert.Equal(t, gobreaker.StateClosed, hook.GetState())
}

func TestMetricsHook_RecordsOperations(t *testing.T) {
	mr := miniredis.RunT(t)
	redisMetrics := metrics.NewRedisMetrics(prometheus.NewRegistry())
	client := newClientFor(t, mr.Addr())
	client.AddHook(NewMetricsHook(redisMetrics))
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	assert.ErrorIs(t, client.Get(ctx, "missing").Err(), goredis.Nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(redisMetrics.Operations.WithLabelValues("set", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(redisMetrics.Operations.WithLabelValues("get", "success")))
}

func TestNewClient_Connects(t *testing.T) {
	client := setupTestClient(t)

	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-url://", nil)
	assert.Error(t, err)
}

func TestNewClient_WithMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), "redis://"+mr.Addr(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := NewTokenStore(client)
	identity, err := store.ResolveIdentityForToken(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, identity.Authenticated)
}
