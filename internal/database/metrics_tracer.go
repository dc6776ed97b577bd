package database

import (
	"context"
	"strings"
	"time"

	"github.com/ParashDev/sprintor-sub000/internal/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer hooks into pgx to time every query and count failures. The
// metric label is the leading SQL keyword and nothing else, which keeps the
// label cardinality bounded no matter what the query text contains.
type MetricsTracer struct{}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type traceKey struct{}

type traceData struct {
	start time.Time
	label string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceData{
		start: time.Now(),
		label: queryLabel(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	td, ok := ctx.Value(traceKey{}).(traceData)
	if !ok {
		return
	}

	metrics.DBQueryDuration.WithLabelValues(td.label).Observe(time.Since(td.start).Seconds())
	if data.Err != nil {
		metrics.DBErrorsTotal.WithLabelValues(td.label).Inc()
	}
}

const maxQueryLabelLen = 20

// queryLabel reduces SQL text to its first word, truncated as a last resort.
func queryLabel(sql string) string {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "unknown"
	}
	if i := strings.IndexAny(sql, " \n\t"); i > 0 {
		return sql[:i]
	}
	if len(sql) > maxQueryLabelLen {
		return sql[:maxQueryLabelLen]
	}
	return sql
}
