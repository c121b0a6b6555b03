package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond, BackoffCoefficient: 1.5}

	attempts := 0
	err := policy.Execute(context.Background(), "flaky", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return dErrors.New(dErrors.CodeUnavailable, "downstream unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_InvalidInputIsNotRetried(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialInterval: time.Millisecond, BackoffCoefficient: 1.5}

	attempts := 0
	err := policy.Execute(context.Background(), "validate", func(context.Context) error {
		attempts++
		return dErrors.New(dErrors.CodeInvalidInput, "malformed fiscal code")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.False(t, dErrors.HasCode(err, dErrors.CodeActivityFailure))
}

func TestRetryPolicy_ExhaustionWrapsActivityFailure(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, BackoffCoefficient: 1}

	attempts := 0
	err := policy.Execute(context.Background(), "persist", func(context.Context) error {
		attempts++
		return dErrors.New(dErrors.CodeUnavailable, "still down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeActivityFailure))
	// The underlying cause stays reachable through the chain.
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Contains(t, err.Error(), "persist exhausted 3 attempts")
}

func TestRetryPolicy_ContextCancellationStopsRetrying(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, InitialInterval: time.Hour, BackoffCoefficient: 2}

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		// Cancel while Execute waits out the first backoff interval.
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, "slow", func(context.Context) error {
		attempts++
		return dErrors.New(dErrors.CodeUnavailable, "nope")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 10, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.InitialInterval)
	assert.InDelta(t, 1.5, policy.BackoffCoefficient, 0.0001)
}
