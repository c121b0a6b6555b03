package orchestration

import (
	"context"
	"fmt"
	"time"

	dErrors "github.com/pagopa/io-functions-admin-sub002/pkg/domain-errors"
)

// RetryPolicy bounds the attempts of one side-effecting step. The interval
// grows by BackoffCoefficient after each failed attempt.
type RetryPolicy struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	BackoffCoefficient float64
}

// DefaultRetryPolicy matches the production configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        10,
		InitialInterval:    500 * time.Millisecond,
		BackoffCoefficient: 1.5,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffCoefficient < 1 {
		p.BackoffCoefficient = 1
	}
	return p
}

// Execute runs fn under the policy. Validation failures are never retried:
// the input will not become valid by waiting. Exhausting the budget returns
// the last error wrapped with CodeActivityFailure and the step name.
func (p RetryPolicy) Execute(ctx context.Context, name string, fn func(context.Context) error) error {
	p = p.normalized()
	interval := p.InitialInterval

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if dErrors.HasCode(lastErr, dErrors.CodeInvalidInput) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * p.BackoffCoefficient)
	}

	return dErrors.Wrap(lastErr, dErrors.CodeActivityFailure,
		fmt.Sprintf("%s exhausted %d attempts", name, p.MaxAttempts))
}
