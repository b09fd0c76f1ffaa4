package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// jitterFactor spreads each wait by up to 25% either way.
const jitterFactor = 0.25

// RetryPolicy defines retry behavior for failed operations
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryPolicies returns the policies used for startup connections.
func DefaultRetryPolicies() map[string]RetryPolicy {
	return map[string]RetryPolicy{
		"database_connect": {
			MaxRetries:    5,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
		"redis_connect": {
			MaxRetries:    3,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterEnabled: true,
		},
	}
}

// backOff builds the exponential schedule for the policy.
func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.BackoffFactor
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	if p.JitterEnabled {
		b.RandomizationFactor = jitterFactor
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()
	return b
}

// Retrier runs operations under named retry policies.
type Retrier struct {
	logger   *logrus.Logger
	policies map[string]RetryPolicy
}

// NewRetrier creates a Retrier with the given policies. Unknown operation
// names fall back to a single attempt.
func NewRetrier(logger *logrus.Logger, policies map[string]RetryPolicy) *Retrier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Retrier{logger: logger, policies: policies}
}

// Do runs op until it succeeds, the policy is exhausted or ctx is done.
func (r *Retrier) Do(ctx context.Context, operation string, op func(context.Context) error) error {
	policy := r.policies[operation]
	start := time.Now()
	attempts := 0

	notify := func(err error, wait time.Duration) {
		r.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempts,
			"error":     err.Error(),
			"delay":     wait,
		}).Warn("Operation failed, retrying")
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, op(ctx)
	}, backoff.WithBackOff(policy.backOff()), backoff.WithMaxTries(uint(policy.MaxRetries+1)), backoff.WithNotify(notify))
	if err == nil {
		if attempts > 1 {
			r.logger.WithFields(logrus.Fields{
				"operation": operation,
				"attempts":  attempts,
				"duration":  time.Since(start),
			}).Info("Operation recovered after retry")
		}
		return nil
	}

	r.logger.WithFields(logrus.Fields{
		"operation": operation,
		"attempts":  attempts,
		"duration":  time.Since(start),
		"error":     err.Error(),
	}).Error("Operation failed after all retries")
	return err
}
