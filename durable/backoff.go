package durable

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Backoff computes the delay before retry attempt n (1-indexed) of a step
// retrying with exponential backoff: 2^n seconds, matching the worker
// executor's retry policy (§4.6, "Retry").
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// RetryLimiter paces concurrently retrying durable steps so that many steps
// backing off at the same moment do not thundering-herd the engine with
// simultaneous re-invocations. It wraps a token-bucket limiter rather than a
// fixed sleep so bursts of independent, non-correlated retries are still
// admitted promptly while a correlated spike is smoothed out.
type RetryLimiter struct {
	limiter *rate.Limiter
}

// NewRetryLimiter constructs a limiter admitting up to ratePerSecond retry
// attempts per second, with a burst capacity of burst.
func NewRetryLimiter(ratePerSecond float64, burst int) *RetryLimiter {
	return &RetryLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until the limiter admits one retry attempt or ctx is done.
func (l *RetryLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
