// Package resilience provides generic retry, an adaptive circuit breaker,
// and a token-bucket rate limiter for the coordinator daemon: the
// coordinator's dispatch step runs behind the circuit breaker, and the IPC
// accept loop behind the rate limiter.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/swarmguard/workgraph/internal/otelinit"
)

// Retry executes fn with exponential backoff plus full jitter. delay is the
// initial backoff, doubling (capped at 60s) after each failed attempt.
// metrics is the shared instrument set (otelinit.InitMetrics); passing the
// zero value is safe — a nil instrument simply isn't recorded to.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, metrics otelinit.Metrics, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}

	cur := delay
	var lastErr error

	for i := 0; i < attempts; i++ {
		v, err := fn()
		if metrics.RetryAttempts != nil {
			metrics.RetryAttempts.Add(ctx, 1)
		}
		if err == nil {
			if metrics.RetrySuccessTotal != nil {
				metrics.RetrySuccessTotal.Add(ctx, 1)
			}
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}

		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			if metrics.RetryFailTotal != nil {
				metrics.RetryFailTotal.Add(ctx, 1)
			}
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	if metrics.RetryFailTotal != nil {
		metrics.RetryFailTotal.Add(ctx, 1)
	}
	return zero, lastErr
}
