package orchestrator

import (
	"context"
	"errors"
	"time"

	"aerocrawl/internal/types"
)

// RetryPolicy bounds retries around a detail fetch. Backoff returns the
// delay before the given attempt (1-based; attempt 1 never waits).
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// NewRetryPolicy builds an exponential policy: baseDelay doubles per
// attempt. maxAttempts below 1 is clamped to 1.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			if attempt <= 1 {
				return 0
			}
			return baseDelay << (attempt - 2)
		},
	}
}

// Do runs fn up to MaxAttempts times. Only retryable transport errors are
// retried; extraction errors and context cancellation return immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *types.TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}
