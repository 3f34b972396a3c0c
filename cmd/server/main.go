package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/access"
	"github.com/fabgilson/scrumboard-live/internal/adapter/httpserver"
	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/fabgilson/scrumboard-live/internal/adapter/postgres"
	"github.com/fabgilson/scrumboard-live/internal/adapter/redis"
	"github.com/fabgilson/scrumboard-live/internal/broadcast"
	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/fabgilson/scrumboard-live/internal/gateway"
	"github.com/fabgilson/scrumboard-live/internal/hub"
	"github.com/fabgilson/scrumboard-live/internal/platform/config"
	"github.com/fabgilson/scrumboard-live/internal/platform/logging"
	"github.com/fabgilson/scrumboard-live/internal/platform/retry"
	"github.com/fabgilson/scrumboard-live/internal/platform/version"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const membershipEvictionInterval = time.Minute

var startupRetry = retry.Policy{
	MaxAttempts:    6,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     8 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Dependency not ready, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

// relayResubscribe paces Relay.Run, which begins a new round whenever attempts run out.
var relayResubscribe = retry.Policy{
	MaxAttempts:    20,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Relay subscription lost, resubscribing", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

type shutdownHooks struct {
	srv          *httpserver.Server
	gw           *gateway.Gateway
	stopRelay    context.CancelFunc
	stopEviction func()
}

func runGracefulShutdown(cfg *config.Config, hooks shutdownHooks) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := hooks.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := hooks.gw.Shutdown(shutdownCtx); err != nil {
			slog.Error("Gateway shutdown error", "error", err)
		}

		hooks.stopRelay()
		hooks.stopEviction()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, m *metrics.DatabaseMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := retry.Do(ctx, startupRetry, retry.Transient, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: cfg.DatabaseMaxConns, Metrics: m})
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	err = retry.DoVoid(ctx, startupRetry, retry.Transient, func(ctx context.Context) error {
		return postgres.RunMigrationsWithLock(ctx, pool)
	})
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := retry.Do(ctx, startupRetry, retry.Transient, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, m)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupSender returns the relay when it is enabled, otherwise the local registry. The
// relay's subscription state joins the readiness checks; the returned cancel stops it.
func setupSender(cfg *config.Config, rdb *goredis.Client, registry *hub.Registry, m *metrics.RedisMetrics) (domain.GroupSender, []httpserver.HealthCheck, context.CancelFunc) {
	if !cfg.RelayEnabled {
		slog.Info("Relay disabled, broadcasting to local connections only")
		return registry, nil, func() {}
	}

	relay := redis.NewRelay(rdb, registry, m)
	ctx, cancel := context.WithCancel(context.Background())
	go relay.Run(ctx, relayResubscribe)
	return relay, []httpserver.HealthCheck{{Name: "relay", Check: relay.Check}}, cancel
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	redisMetrics := metrics.NewRedisMetrics(reg)
	cacheMetrics := metrics.NewCacheMetrics(reg)
	gatewayMetrics := metrics.NewGatewayMetrics(reg)
	broadcastMetrics := metrics.NewBroadcastMetrics(reg)
	dbMetrics := metrics.NewDatabaseMetrics(reg)

	pool := setupDB(cfg, dbMetrics)
	defer pool.Close()

	redisClient := setupRedis(cfg, redisMetrics)
	defer func() { _ = redisClient.Close() }()

	tokens := redis.NewTokenStore(redisClient)
	membershipRepo := postgres.NewMembershipRepo(pool)
	memberships := access.NewMembershipCache(membershipRepo, cfg.MembershipCacheTTL, clock, cacheMetrics)
	stopEviction := memberships.StartEvictionTimer(membershipEvictionInterval)

	registry := hub.NewRegistry(wsMetrics)
	sender, relayChecks, stopRelay := setupSender(cfg, redisClient, registry, redisMetrics)
	publisher := broadcast.NewService(sender, clock, broadcastMetrics)

	gw := gateway.New(tokens, memberships, registry, gateway.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      gateway.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		Limits:           gateway.NewLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst, clock),
		Clock:            clock,
		Metrics:          gatewayMetrics,
		WebSocketMetrics: wsMetrics,
	})

	srv := httpserver.NewServer(httpserver.Options{
		Port:            cfg.Port,
		PublishAPIKey:   cfg.PublishAPIKey,
		Live:            gw,
		Publisher:       publisher,
		Groups:          registry,
		Memberships:     membershipRepo,
		MembershipCache: memberships,
		Tokens:          tokens,
		HealthChecks: append([]httpserver.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		}, relayChecks...),
		Metrics:     metrics.Handler(reg),
		HTTPMetrics: httpMetrics,
		Clock:       clock,
	})

	done := runGracefulShutdown(cfg, shutdownHooks{
		srv:          srv,
		gw:           gw,
		stopRelay:    stopRelay,
		stopEviction: stopEviction,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
