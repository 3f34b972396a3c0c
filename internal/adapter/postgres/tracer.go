package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fabgilson/scrumboard-live/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
)

// queryTracer records latency and failures of every query run through the pool.
type queryTracer struct {
	metrics *metrics.DatabaseMetrics
	clock   clockwork.Clock
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

type traceKey struct{}

type traceStart struct {
	at        time.Time
	statement string
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{at: t.clock.Now(), statement: statementKind(data.SQL)})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	t.metrics.QueryDuration.WithLabelValues(start.statement).Observe(t.clock.Since(start.at).Seconds())
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		t.metrics.QueryErrors.WithLabelValues(start.statement).Inc()
	}
}

// statementKind is the upper-cased leading keyword of sql, e.g. "SELECT".
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	kind := strings.ToUpper(fields[0])
	switch kind {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH", "BEGIN", "COMMIT", "ROLLBACK":
		return kind
	}
	return "other"
}
