package database

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/cashflow-ai-go/internal/logging"
	"github.com/irfndi/cashflow-ai-go/internal/telemetry"
)

// TracedPool wraps a DatabasePool with a span and a structured log line per
// statement.
type TracedPool struct {
	pool   DatabasePool
	tracer trace.Tracer
	logger *logging.StandardLogger
}

// NewTracedPool wraps pool. A nil logger disables the log lines.
func NewTracedPool(pool DatabasePool, logger *logging.StandardLogger) *TracedPool {
	return &TracedPool{
		pool:   pool,
		tracer: telemetry.GetDatabaseTracer(),
		logger: logger,
	}
}

func (p *TracedPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	ctx, span := p.start(ctx, sql)
	defer span.End()

	start := time.Now()
	rows, err := p.pool.Query(ctx, sql, args...)
	p.finish(span, sql, start, -1, err)
	return rows, err
}

func (p *TracedPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	ctx, span := p.start(ctx, sql)
	defer span.End()

	start := time.Now()
	row := p.pool.QueryRow(ctx, sql, args...)
	p.finish(span, sql, start, -1, nil)
	return row
}

func (p *TracedPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	ctx, span := p.start(ctx, sql)
	defer span.End()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, sql, args...)
	p.finish(span, sql, start, tag.RowsAffected(), err)
	return tag, err
}

func (p *TracedPool) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := p.tracer.Start(ctx, "db.begin", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.system", "postgresql")))
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return tx, err
}

func (p *TracedPool) start(ctx context.Context, sql string) (context.Context, trace.Span) {
	op := operation(sql)
	return p.tracer.Start(ctx, "db."+strings.ToLower(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", strings.TrimSpace(sql)),
		),
	)
}

func (p *TracedPool) finish(span trace.Span, sql string, start time.Time, rowsAffected int64, err error) {
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if rowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", rowsAffected))
	}
	if p.logger != nil {
		p.logger.LogDatabaseOperation(operation(sql), table(sql), elapsed.Milliseconds(), rowsAffected)
	}
}

// operation returns the leading SQL keyword, skipping a WITH prefix.
func operation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	op := strings.ToUpper(fields[0])
	if op == "WITH" {
		for _, f := range fields[1:] {
			switch u := strings.ToUpper(f); u {
			case "SELECT", "INSERT", "UPDATE", "DELETE":
				return u
			}
		}
	}
	return op
}

// table returns the first identifier after FROM, INTO, UPDATE or TABLE.
func table(sql string) string {
	fields := strings.Fields(sql)
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "FROM", "INTO", "UPDATE", "TABLE":
			name := fields[i+1]
			if strings.EqualFold(name, "IF") && i+4 < len(fields) {
				name = fields[i+4]
			}
			return strings.Trim(name, "(),;")
		}
	}
	return ""
}
