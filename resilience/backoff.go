package resilience

import (
	"context"
	"log/slog"
	"time"
)

// Do retries fn with exponential backoff. It respects context cancellation
// between attempts and never retries past maxRetries.
//
// Parameters:
//   - maxRetries: maximum number of retry attempts (0 = no retry)
//   - baseBackoff: initial wait between retries, doubled each attempt
//   - logger: used to log retry attempts (may be nil for silent retries)
func Do(ctx context.Context, maxRetries int, baseBackoff time.Duration, logger *slog.Logger, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry if context is done.
		if ctx.Err() != nil {
			return lastErr
		}

		// Don't retry when the breaker has already given up — more attempts
		// won't help until it resets.
		if _, ok := err.(*ErrCircuitOpen); ok {
			return err
		}

		if attempt < maxRetries {
			wait := baseBackoff * (1 << uint(attempt))
			if logger != nil {
				logger.WarnContext(ctx, "retrying call",
					"attempt", attempt+1,
					"max_retries", maxRetries,
					"backoff_ms", wait.Milliseconds(),
					"error", err)
			}
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}
