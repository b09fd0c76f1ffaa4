package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
	"github.com/irfndi/cashflow-ai-go/internal/logging"
)

// ForecastCacheEntry is the cached form of a generated forecast.
type ForecastCacheEntry struct {
	ForecastID     uuid.UUID                   `json:"forecast_id"`
	OrganizationID uuid.UUID                   `json:"organization_id"`
	Result         *forecasting.ForecastResult `json:"result"`
	CachedAt       time.Time                   `json:"cached_at"`
}

// ForecastCacheStats tracks cache performance.
type ForecastCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// LookupObserver is notified of every cache lookup.
type LookupObserver interface {
	RecordCacheLookup(cache string, hit bool)
}

// RedisForecastCache stores forecast results in Redis under a TTL.
type RedisForecastCache struct {
	redis    *redis.Client
	ttl      time.Duration
	prefix   string
	logger   *logrus.Logger
	events   logging.Logger
	observer LookupObserver

	mu    sync.Mutex
	stats ForecastCacheStats
}

// NewRedisForecastCache creates a forecast cache. events and observer may be nil.
func NewRedisForecastCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger, events logging.Logger, observer LookupObserver) *RedisForecastCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if events == nil {
		events = logging.NewStandardLoggerWithWriter(io.Discard, "error", "")
	}
	return &RedisForecastCache{
		redis:    client,
		ttl:      ttl,
		prefix:   "forecast_result:",
		logger:   logger,
		events:   events,
		observer: observer,
	}
}

func (c *RedisForecastCache) key(forecastID uuid.UUID) string {
	return c.prefix + forecastID.String()
}

// Get returns the cached entry for forecastID. Redis and decoding errors are
// logged and reported as misses.
func (c *RedisForecastCache) Get(ctx context.Context, forecastID uuid.UUID) (*ForecastCacheEntry, bool) {
	start := time.Now()
	key := c.key(forecastID)
	data, err := c.redis.Get(ctx, key).Bytes()
	c.events.LogCacheOperation("get", key, err == nil, time.Since(start).Milliseconds())
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithFields(logrus.Fields{
				"forecast_id": forecastID,
				"error":       err.Error(),
			}).Warn("Redis error reading cached forecast")
			c.count(func(s *ForecastCacheStats) { s.Errors++ })
		}
		c.miss()
		return nil, false
	}

	var entry ForecastCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithFields(logrus.Fields{
			"forecast_id": forecastID,
			"error":       err.Error(),
		}).Warn("Discarding undecodable cached forecast")
		c.count(func(s *ForecastCacheStats) { s.Errors++ })
		c.miss()
		return nil, false
	}

	c.count(func(s *ForecastCacheStats) { s.Hits++ })
	if c.observer != nil {
		c.observer.RecordCacheLookup("forecast_result", true)
	}
	return &entry, true
}

// Set stores a forecast result under its forecast ID.
func (c *RedisForecastCache) Set(ctx context.Context, forecastID, organizationID uuid.UUID, result *forecasting.ForecastResult) error {
	entry := ForecastCacheEntry{
		ForecastID:     forecastID,
		OrganizationID: organizationID,
		Result:         result,
		CachedAt:       time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode forecast %s: %w", forecastID, err)
	}
	start := time.Now()
	key := c.key(forecastID)
	err = c.redis.Set(ctx, key, data, c.ttl).Err()
	c.events.LogCacheOperation("set", key, false, time.Since(start).Milliseconds())
	if err != nil {
		c.count(func(s *ForecastCacheStats) { s.Errors++ })
		return fmt.Errorf("failed to cache forecast %s: %w", forecastID, err)
	}
	c.count(func(s *ForecastCacheStats) { s.Sets++ })
	return nil
}

// Delete evicts a forecast.
func (c *RedisForecastCache) Delete(ctx context.Context, forecastID uuid.UUID) error {
	return c.redis.Del(ctx, c.key(forecastID)).Err()
}

// Stats returns a snapshot of the counters.
func (c *RedisForecastCache) Stats() ForecastCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisForecastCache) miss() {
	c.count(func(s *ForecastCacheStats) { s.Misses++ })
	if c.observer != nil {
		c.observer.RecordCacheLookup("forecast_result", false)
	}
}

func (c *RedisForecastCache) count(update func(*ForecastCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
