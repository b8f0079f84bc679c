package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/occ/observability"
)

// WithObservability returns a Middleware that records call duration as a
// metric and counts failures via the observability package.
//
// It emits a "resilience.op.duration_ms" metric for every call and a
// "resilience.op.error" metric on failures. Labels include the operation
// name and the rebuild strategy in effect.
func WithObservability(mm *observability.MetricsManager, operation, strategy string) Middleware {
	return func(next Op) Op {
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)
			dur := time.Since(start)

			labels := map[string]string{
				"operation": operation,
				"strategy":  strategy,
			}

			mm.Record(&observability.Metric{
				Name:      "resilience.op.duration_ms",
				Timestamp: start,
				Value:     float64(dur.Milliseconds()),
				Labels:    labels,
				Unit:      "milliseconds",
			})

			if err != nil {
				mm.Record(&observability.Metric{
					Name:      "resilience.op.error",
					Timestamp: start,
					Value:     1,
					Labels:    labels,
					Unit:      "count",
				})
			}

			return err
		}
	}
}

// WithCallLogging returns a Middleware that uses slog for structured call
// logging with duration and error details.
func WithCallLogging(logger *slog.Logger, operation string) Middleware {
	return func(next Op) Op {
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)
			dur := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "resilience call failed",
					"operation", operation,
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "resilience call ok",
					"operation", operation,
					"duration_ms", dur.Milliseconds())
			}
			return err
		}
	}
}
