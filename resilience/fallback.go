package resilience

import (
	"context"
	"log/slog"
)

// WithFallback returns a Middleware that falls back to a local Op when the
// primary Op fails. This enables graceful degradation: if the primary
// builder or transport is down, the call is retried against the fallback.
//
// The fallback is only attempted if local is non-nil. Context cancellation
// errors are NOT retried — they indicate the caller gave up, not that the
// primary failed.
func WithFallback(local Op, operation string, logger *slog.Logger) Middleware {
	return func(next Op) Op {
		if local == nil {
			return next
		}
		return func(ctx context.Context) error {
			err := next(ctx)
			if err == nil {
				return nil
			}

			if ctx.Err() != nil {
				return err
			}

			if logger != nil {
				logger.WarnContext(ctx, "primary failed, falling back",
					"operation", operation,
					"primary_error", err)
			}

			return local(ctx)
		}
	}
}
