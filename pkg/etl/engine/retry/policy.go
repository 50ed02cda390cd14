// Package retry decides whether and when a failed operation is attempted again.
package retry

import (
	"context"
	"math"
	"time"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// RetryPolicy defines retry logic for transient failures.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	ShouldRetry(err error) bool
	// BackoffInterval returns the wait before the given attempt (starting from 1).
	BackoffInterval(attempt int) time.Duration
	// MaxAttempts returns the maximum number of attempts, the first one included.
	MaxAttempts() int
}

// defaultRetryPolicy retries EtlErrors flagged retryable plus any error matching one of the
// registered error type names, with exponential backoff.
type defaultRetryPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	multiplier          float64
	retryableExceptions []string
}

// NewPolicy creates a RetryPolicy from the retry section of the configuration.
// retryableExceptions are names accepted by exception.IsErrorOfType.
func NewPolicy(cfg config.RetryConfig, retryableExceptions ...string) RetryPolicy {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     cfg.InitialInterval,
		multiplier:          multiplier,
		retryableExceptions: retryableExceptions,
	}
}

func (p *defaultRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if exception.IsTemporary(err) {
		return true
	}
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}
	return false
}

// BackoffInterval is initialInterval * multiplier^(attempt-2) for attempt >= 2; the first
// attempt never waits.
func (p *defaultRetryPolicy) BackoffInterval(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(float64(p.initialInterval) * math.Pow(p.multiplier, float64(attempt-2)))
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)

// Do calls fn until it succeeds, returns a non-retryable error, or the policy runs out of
// attempts. The last error is returned. Waiting honours ctx cancellation.
func Do(ctx context.Context, policy RetryPolicy, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= policy.MaxAttempts(); attempt++ {
		if wait := policy.BackoffInterval(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !policy.ShouldRetry(err) {
			return err
		}
		if attempt < policy.MaxAttempts() {
			logger.Warnf("%s failed (attempt %d/%d), retrying: %v", operation, attempt, policy.MaxAttempts(), err)
		}
	}
	return err
}
