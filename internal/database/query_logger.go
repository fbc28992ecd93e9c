package database

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// QueryLoggerConfig sets the slow-query thresholds.
type QueryLoggerConfig struct {
	// SlowQueryThreshold marks queries logged at WARN.
	SlowQueryThreshold time.Duration

	// VerySlowQueryThreshold marks queries logged at ERROR.
	VerySlowQueryThreshold time.Duration
}

// DefaultQueryLoggerConfig is 100ms warn, 500ms error.
func DefaultQueryLoggerConfig() *QueryLoggerConfig {
	return &QueryLoggerConfig{
		SlowQueryThreshold:     100 * time.Millisecond,
		VerySlowQueryThreshold: 500 * time.Millisecond,
	}
}

// QueryStats is a snapshot of the tracer's counters.
type QueryStats struct {
	Total           int64
	Slow            int64
	VerySlow        int64
	Failed          int64
	AvgDuration     time.Duration
	SlowestSQL      string
	SlowestDuration time.Duration
}

// QueryLogger is a pgx.QueryTracer that logs slow and failed queries and
// keeps aggregate counters.
type QueryLogger struct {
	cfg    *QueryLoggerConfig
	logger *zap.Logger

	mu            sync.Mutex
	total         int64
	slow          int64
	verySlow      int64
	failed        int64
	totalDuration time.Duration
	slowestSQL    string
	slowest       time.Duration
}

// NewQueryLogger creates a query tracer. A nil config gets defaults.
func NewQueryLogger(cfg *QueryLoggerConfig, logger *zap.Logger) *QueryLogger {
	if cfg == nil {
		cfg = DefaultQueryLoggerConfig()
	}
	return &QueryLogger{cfg: cfg, logger: logger.Named("query")}
}

type queryTraceData struct {
	start time.Time
	sql   string
}

type queryTraceKey struct{}

// TraceQueryStart implements pgx.QueryTracer.
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryTraceKey{}, &queryTraceData{
		start: time.Now(),
		sql:   data.SQL,
	})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	trace, ok := ctx.Value(queryTraceKey{}).(*queryTraceData)
	if !ok {
		return
	}
	duration := time.Since(trace.start)

	ql.mu.Lock()
	ql.total++
	ql.totalDuration += duration
	if duration > ql.slowest {
		ql.slowest = duration
		ql.slowestSQL = truncateSQL(trace.sql, 200)
	}
	if data.Err != nil {
		ql.failed++
	} else if duration >= ql.cfg.VerySlowQueryThreshold {
		ql.verySlow++
		ql.slow++
	} else if duration >= ql.cfg.SlowQueryThreshold {
		ql.slow++
	}
	ql.mu.Unlock()

	switch {
	case data.Err != nil:
		ql.logger.Error("query failed",
			zap.String("sql", truncateSQL(trace.sql, 500)),
			zap.Duration("duration", duration),
			zap.Error(data.Err),
		)
	case duration >= ql.cfg.VerySlowQueryThreshold:
		ql.logger.Error("very slow query",
			zap.String("sql", truncateSQL(trace.sql, 500)),
			zap.Duration("duration", duration),
			zap.String("command_tag", data.CommandTag.String()),
		)
	case duration >= ql.cfg.SlowQueryThreshold:
		ql.logger.Warn("slow query",
			zap.String("sql", truncateSQL(trace.sql, 500)),
			zap.Duration("duration", duration),
			zap.String("command_tag", data.CommandTag.String()),
		)
	}
}

// Stats returns a snapshot of the counters.
func (ql *QueryLogger) Stats() QueryStats {
	ql.mu.Lock()
	defer ql.mu.Unlock()
	stats := QueryStats{
		Total:           ql.total,
		Slow:            ql.slow,
		VerySlow:        ql.verySlow,
		Failed:          ql.failed,
		SlowestSQL:      ql.slowestSQL,
		SlowestDuration: ql.slowest,
	}
	if ql.total > 0 {
		stats.AvgDuration = ql.totalDuration / time.Duration(ql.total)
	}
	return stats
}

// ResetStats zeroes the counters.
func (ql *QueryLogger) ResetStats() {
	ql.mu.Lock()
	defer ql.mu.Unlock()
	ql.total, ql.slow, ql.verySlow, ql.failed = 0, 0, 0, 0
	ql.totalDuration, ql.slowest, ql.slowestSQL = 0, 0, ""
}

func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen-3] + "..."
}
