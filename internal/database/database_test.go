package database

import (
	"bytes"
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/cashflow-ai-go/internal/config"
	"github.com/irfndi/cashflow-ai-go/internal/logging"
)

func TestBuildDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "cash",
		Password: "secret",
		DBName:   "cashflow_ai",
		SSLMode:  "require",
	}
	assert.Equal(t, "host=db port=5433 user=cash password=secret dbname=cashflow_ai sslmode=require", BuildDSN(cfg))

	cfg.DatabaseURL = "postgres://cash:secret@db/cashflow_ai"
	assert.Equal(t, "postgres://cash:secret@db/cashflow_ai", BuildDSN(cfg))
}

func TestNilConnections(t *testing.T) {
	db := &PostgresDB{}
	assert.NotPanics(t, db.Close)
	assert.Error(t, db.HealthCheck(context.Background()))

	client := &RedisClient{}
	assert.NotPanics(t, client.Close)
	err := client.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(config.RedisConfig{Host: "cache", Port: 6380, Password: "pw", DB: 2})
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestNewRedisConnection(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewRedisConnection(config.RedisConfig{Host: s.Host(), Port: port})
	require.NoError(t, err)
	assert.NoError(t, client.HealthCheck(context.Background()))

	s.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
	client.Close()
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	host := s.Host()
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	s.Close()

	_, err = NewRedisConnection(config.RedisConfig{Host: host, Port: port})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestSQLOperationAndTable(t *testing.T) {
	assert.Equal(t, "SELECT", operation(dailySeriesQuery))
	assert.Equal(t, "days", table(dailySeriesQuery))
	assert.Equal(t, "INSERT", operation("INSERT INTO forecasts (id) VALUES ($1)"))
	assert.Equal(t, "forecasts", table("INSERT INTO forecasts (id) VALUES ($1)"))
	assert.Equal(t, "forecasts", table("\n\t\tUPDATE forecasts SET status = $2"))
	assert.Equal(t, "bank_accounts", table("CREATE TABLE IF NOT EXISTS bank_accounts ("))
	assert.Equal(t, "UNKNOWN", operation("   "))
	assert.Equal(t, "", table("SELECT 1"))
}

func TestTracedPool(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	mock := newMockPool(t)
	var buf bytes.Buffer
	logger := logging.NewStandardLoggerWithWriter(&buf, "debug", "test")

	traced := NewTracedPool(mock, logger)
	traced.tracer = provider.Tracer("database-test")

	mock.ExpectExec("UPDATE forecasts").
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	tag, err := traced.Exec(context.Background(), "UPDATE forecasts SET status = $1", "active")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tag.RowsAffected())

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.update", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("db.system", "postgresql"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int64("db.rows_affected", 2))
	assert.Contains(t, buf.String(), `"table":"forecasts"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
