package services

import (
	"context"
	"time"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/logger"
)

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. Only domain.IsRetryable errors are retried.
func retry(ctx context.Context, policy domain.RetryPolicy, op string, fn func(context.Context) error) error {
	attempts := max(policy.MaxAttempts, 1)
	delay := policy.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !domain.IsRetryable(err) || attempt >= attempts {
			return err
		}

		logger.Debug("%s: attempt %d/%d failed, retrying in %v: %v", op, attempt, attempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = nextBackoff(delay, policy)
	}
}

// nextBackoff grows delay by the policy multiplier, capped at MaxBackoff.
func nextBackoff(delay time.Duration, policy domain.RetryPolicy) time.Duration {
	if policy.Multiplier > 1 {
		delay = time.Duration(float64(delay) * policy.Multiplier)
	}
	if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
		delay = policy.MaxBackoff
	}
	return delay
}
