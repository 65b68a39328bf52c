package gemini

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// retryCall calls fn up to maxAttempts times, sleeping with exponential
// backoff between transient failures. The server's Retry-After value, when
// present, acts as a floor on the delay.
func retryCall[T any](ctx context.Context, maxAttempts int, base time.Duration, logger *slog.Logger, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	var last error
	for i := 0; i < maxAttempts; i++ {
		result, err := fn(i)
		if err == nil || !isTransient(err) {
			return result, err
		}
		last = err
		logger.Warn("gemini_retry",
			"attempt", i+1,
			"max_attempts", maxAttempts,
			"err", err)
		if i < maxAttempts-1 {
			delay := retryDelay(base, i, err)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	logger.Error("gemini_retries_exhausted", "attempts", maxAttempts, "err", last)
	return zero, last
}

func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryBackoff returns base * 2^i plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}
