package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
	"github.com/irfndi/cashflow-ai-go/internal/logging"
	"github.com/irfndi/cashflow-ai-go/internal/testutil"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	return testutil.NewRedis(t)
}

type lookupCounter struct {
	hits, misses int
}

func (l *lookupCounter) RecordCacheLookup(_ string, hit bool) {
	if hit {
		l.hits++
	} else {
		l.misses++
	}
}

func sampleResult() *forecasting.ForecastResult {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return &forecasting.ForecastResult{
		Predictions:         []float64{120.5, 98.25},
		ConfidenceIntervals: []forecasting.Interval{{Lower: 100, Upper: 141}, {Lower: 80, Upper: 116.5}},
		FeatureImportance: []forecasting.FeatureImportance{
			{Feature: "net_flow_lag_1", Importance: 0.6},
			{Feature: "day_of_week", Importance: 0.4},
		},
		ModelMetrics:    map[string]float64{forecasting.MetricMAE: 12.5},
		ModelType:       forecasting.ModelEnsemble,
		ForecastDates:   []time.Time{day, day.AddDate(0, 0, 1)},
		ConfidenceScore: 0.83,
	}
}

func TestRedisForecastCache_SetGet(t *testing.T) {
	s, client := setupTestRedis(t)
	observer := &lookupCounter{}
	c := NewRedisForecastCache(client, time.Hour, nil, nil, observer)
	ctx := context.Background()
	forecastID, orgID := uuid.New(), uuid.New()

	_, found := c.Get(ctx, forecastID)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, forecastID, orgID, sampleResult()))
	assert.True(t, s.Exists("forecast_result:"+forecastID.String()))
	assert.Equal(t, time.Hour, s.TTL("forecast_result:"+forecastID.String()))

	entry, found := c.Get(ctx, forecastID)
	require.True(t, found)
	assert.Equal(t, orgID, entry.OrganizationID)
	assert.Equal(t, sampleResult(), entry.Result)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, 1, observer.hits)
	assert.Equal(t, 1, observer.misses)
}

func TestRedisForecastCache_Expiry(t *testing.T) {
	s, client := setupTestRedis(t)
	c := NewRedisForecastCache(client, time.Minute, nil, nil, nil)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.Set(ctx, id, uuid.New(), sampleResult()))
	s.FastForward(2 * time.Minute)

	_, found := c.Get(ctx, id)
	assert.False(t, found)
}

func TestRedisForecastCache_LogsOperations(t *testing.T) {
	_, client := setupTestRedis(t)
	var buf bytes.Buffer
	c := NewRedisForecastCache(client, time.Hour, nil, logging.NewStandardLoggerWithWriter(&buf, "debug", "test"), nil)
	ctx := context.Background()
	id := uuid.New()

	_, found := c.Get(ctx, id)
	require.False(t, found)
	require.NoError(t, c.Set(ctx, id, uuid.New(), sampleResult()))
	_, found = c.Get(ctx, id)
	require.True(t, found)

	key := "forecast_result:" + id.String()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	wants := []struct {
		operation string
		hit       bool
	}{{"get", false}, {"set", false}, {"get", true}}
	for i, want := range wants {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[i]), &entry))
		assert.Equal(t, "cache_operation", entry["event"])
		assert.Equal(t, want.operation, entry["operation"])
		assert.Equal(t, key, entry["key"])
		assert.Equal(t, want.hit, entry["hit"])
	}
}

func TestRedisForecastCache_CorruptEntryAndDelete(t *testing.T) {
	s, client := setupTestRedis(t)
	c := NewRedisForecastCache(client, time.Hour, nil, nil, nil)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, s.Set("forecast_result:"+id.String(), "{not json"))
	_, found := c.Get(ctx, id)
	assert.False(t, found)
	assert.Equal(t, int64(1), c.Stats().Errors)

	require.NoError(t, c.Delete(ctx, id))
	assert.False(t, s.Exists("forecast_result:"+id.String()))
}

func TestRedisForecastCache_RedisDown(t *testing.T) {
	s, client := setupTestRedis(t)
	c := NewRedisForecastCache(client, time.Hour, nil, nil, nil)
	s.Close()

	_, found := c.Get(context.Background(), uuid.New())
	assert.False(t, found)
	assert.Error(t, c.Set(context.Background(), uuid.New(), uuid.New(), sampleResult()))
	assert.Equal(t, int64(2), c.Stats().Errors)
}

func TestModelCache(t *testing.T) {
	mc, err := NewModelCache(2, time.Hour)
	require.NoError(t, err)

	f, err := forecasting.NewForecaster(forecasting.DefaultConfig(), nil)
	require.NoError(t, err)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mc.Add(a, f)
	mc.Add(b, f)
	got, ok := mc.Get(a)
	require.True(t, ok)
	assert.Same(t, f, got)

	mc.Add(c, f)
	_, ok = mc.Get(b)
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, 2, mc.Len())

	mc.Remove(c)
	assert.Equal(t, 1, mc.Len())

	_, err = NewModelCache(0, time.Hour)
	assert.Error(t, err)
}

func TestModelCache_Expiry(t *testing.T) {
	mc, err := NewModelCache(4, 50*time.Millisecond)
	require.NoError(t, err)
	f, err := forecasting.NewForecaster(forecasting.DefaultConfig(), nil)
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	mc.Add(a, f)
	mc.Add(b, f)
	_, ok := mc.Get(a)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	_, ok = mc.Get(a)
	assert.False(t, ok, "stale entry expires")
	_, ok = mc.Get(b)
	assert.False(t, ok)
	assert.Equal(t, 0, mc.Len())
}
