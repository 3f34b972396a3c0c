package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
	"github.com/jonboulle/clockwork"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const schemaVersionTable = "public.schema_version"

// PoolOptions tunes Connect. Zero values keep the pgxpool defaults; a nil Metrics disables
// query tracing.
type PoolOptions struct {
	MaxConns int32
	Metrics  *metrics.DatabaseMetrics
	Clock    clockwork.Clock
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.Metrics != nil {
		clock := opts.Clock
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		poolCfg.ConnConfig.Tracer = &queryTracer{metrics: opts.Metrics, clock: clock}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"sslmode", sslMode(databaseURL),
		"max_conns", poolCfg.MaxConns,
	)
	return pool, nil
}

// sslMode reports the sslmode query parameter as libpq would interpret it.
func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		return strings.ToLower(mode)
	}
	return "prefer (default)"
}

// Instances starting together queue on this advisory lock, so only one applies migrations
// and the rest find the schema current. 0x7363726c6976 spells "scrliv".
const (
	migrationLockID     = 0x7363726c6976
	migrationUnlockWait = 5 * time.Second
)

// RunMigrationsWithLock applies the embedded migrations while holding the advisory lock on
// a dedicated connection.
func RunMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		// the caller's ctx may already be done; the lock must still be released
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), migrationUnlockWait)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Error("Failed to release migration lock", "error", err)
		}
	}()

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	migrator, err := migrate.NewMigrator(ctx, conn.Conn(), schemaVersionTable)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := migrator.LoadMigrations(migrations); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	from, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	target := int32(len(migrator.Migrations))
	if from == target {
		slog.Info("Database schema is current", "version", from)
		return nil
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate from version %d to %d: %w", from, target, err)
	}
	slog.Info("Database migrated", "from", from, "to", target)
	return nil
}
