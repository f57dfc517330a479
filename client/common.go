package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// withRetries runs fn until it succeeds, fails with something other than a
// rate limit, or has been rate limited maxRetries times. The last rate limit
// is returned as its underlying *StatusError.
func withRetries[R any](ctx context.Context, logger *slog.Logger, maxRetries int, fn func() (R, error)) (R, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		var rateLimitErr *ErrRateLimited
		if !errors.As(err, &rateLimitErr) {
			var zero R
			return zero, err
		}
		if attempt >= maxRetries {
			logger.Warn("giving up after rate limiting", "attempts", attempt+1)
			var zero R
			return zero, rateLimitErr.Status
		}

		logger.Warn("operation rate limited, sleeping", "duration", rateLimitErr.RetryAfter, "attempt", attempt+1)
		timer := time.NewTimer(rateLimitErr.RetryAfter)
		select {
		case <-timer.C:
			logger.Debug("finished rate limit sleep, retrying operation")
		case <-ctx.Done():
			timer.Stop()
			var zero R
			return zero, fmt.Errorf("operation cancelled during rate limit sleep: %w", ctx.Err())
		}
	}
}

func withRetriesVoid(ctx context.Context, logger *slog.Logger, maxRetries int, fn func() error) error {
	_, err := withRetries(ctx, logger, maxRetries, func() (any, error) {
		return nil, fn()
	})
	return err
}
