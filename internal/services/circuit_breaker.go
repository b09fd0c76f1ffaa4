package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/irfndi/cashflow-ai-go/internal/cache"
	"github.com/irfndi/cashflow-ai-go/internal/forecasting"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // half-open probes, all must succeed to close
	OpenTimeout      time.Duration // time spent open before probing
}

// CircuitBreakerStats holds statistics for the circuit breaker
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailureTime    time.Time `json:"last_failure_time"`
	StateChanges       int64     `json:"state_changes"`
}

// CircuitBreaker stops calling a failing dependency for a while and lets a
// few probes through before trusting it again.
type CircuitBreaker struct {
	name    string
	config  CircuitBreakerConfig
	logger  *logrus.Logger
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu    sync.Mutex
	stats CircuitBreakerStats
}

// NewCircuitBreaker creates a breaker, filling zero config values with defaults.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *logrus.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cb := &CircuitBreaker{name: name, config: config, logger: logger}
	threshold := uint32(config.FailureThreshold)
	cb.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.SuccessThreshold),
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cb.onStateChange,
	})
	return cb
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.mu.Lock()
	cb.stats.StateChanges++
	cb.mu.Unlock()

	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": name,
		"old_state":       from.String(),
		"new_state":       to.String(),
	}).Info("Circuit breaker state changed")
}

// Execute runs fn unless the breaker is open or out of half-open probes.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := cb.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	rejected := errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
	cb.mu.Lock()
	cb.stats.TotalRequests++
	switch {
	case err == nil:
		cb.stats.SuccessfulRequests++
	case rejected:
		cb.stats.RejectedRequests++
	default:
		cb.stats.FailedRequests++
		cb.stats.LastFailureTime = time.Now()
	}
	cb.mu.Unlock()

	if rejected {
		return ErrCircuitOpen
	}
	if err != nil {
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"failure_count":   cb.breaker.Counts().ConsecutiveFailures,
			"error":           err.Error(),
		}).Warn("Circuit breaker: failed execution")
	}
	return err
}

// Allow reports whether the breaker would admit a call right now without
// reserving a half-open probe.
func (cb *CircuitBreaker) Allow() bool {
	return cb.breaker.State() != gobreaker.StateOpen
}

// State returns the current state, moving an expired open breaker to half-open.
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.breaker.State()
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stats
}

// guardedCache skips the result cache while writes to it keep failing.
// Reads cannot tell a miss from an outage, so only writes trip the breaker.
type guardedCache struct {
	inner   ResultCache
	breaker *CircuitBreaker
}

func newGuardedCache(inner ResultCache, breaker *CircuitBreaker) *guardedCache {
	return &guardedCache{inner: inner, breaker: breaker}
}

func (g *guardedCache) Get(ctx context.Context, forecastID uuid.UUID) (*cache.ForecastCacheEntry, bool) {
	if !g.breaker.Allow() {
		return nil, false
	}
	return g.inner.Get(ctx, forecastID)
}

func (g *guardedCache) Set(ctx context.Context, forecastID, organizationID uuid.UUID, result *forecasting.ForecastResult) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Set(ctx, forecastID, organizationID, result)
	})
}
