package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/exception"
)

func fastPolicy(attempts int) RetryPolicy {
	return NewPolicy(config.RetryConfig{MaxAttempts: attempts, InitialInterval: time.Millisecond, Multiplier: 2})
}

func TestBackoffInterval_Exponential(t *testing.T) {
	p := NewPolicy(config.RetryConfig{MaxAttempts: 4, InitialInterval: 100 * time.Millisecond, Multiplier: 2})

	assert.Equal(t, time.Duration(0), p.BackoffInterval(1))
	assert.Equal(t, 100*time.Millisecond, p.BackoffInterval(2))
	assert.Equal(t, 200*time.Millisecond, p.BackoffInterval(3))
	assert.Equal(t, 400*time.Millisecond, p.BackoffInterval(4))
}

func TestShouldRetry(t *testing.T) {
	p := NewPolicy(config.RetryConfig{MaxAttempts: 3}, exception.OptimisticLockingFailureException)

	assert.False(t, p.ShouldRetry(nil))
	assert.True(t, p.ShouldRetry(exception.NewEtlError("db", exception.KindInternal, "down", nil)))
	assert.True(t, p.ShouldRetry(exception.NewOptimisticLockingFailureException("db", "stale", nil)))
	assert.False(t, p.ShouldRetry(exception.NewEtlError("transform", exception.KindValidation, "bad", nil)))
	assert.True(t, p.ShouldRetry(context.DeadlineExceeded))
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), "upload", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return exception.NewEtlError("storage", exception.KindInternal, "unavailable", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "upload", func(ctx context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), "upload", func(ctx context.Context) error {
		calls++
		return exception.NewEtlError("storage", exception.KindInternal, "unavailable", nil)
	})

	assert.True(t, exception.IsKind(err, exception.KindInternal))
	assert.Equal(t, 2, calls)
}

func TestDo_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Hour, Multiplier: 1})
	calls := 0
	err := Do(ctx, p, "upload", func(ctx context.Context) error {
		calls++
		cancel()
		return exception.NewEtlError("storage", exception.KindInternal, "unavailable", nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
