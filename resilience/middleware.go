package resilience

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Op is a guarded unit of work: connect, send, receive, or any other
// operation the session builder wants to wrap with cross-cutting behaviour.
type Op func(ctx context.Context) error

// Middleware wraps an Op, adding cross-cutting behaviour (logging, timeout,
// recovery, metrics) without changing its signature.
type Middleware func(next Op) Op

// Chain composes middlewares left-to-right: the first middleware in the
// slice is the outermost wrapper (executed first on the call path).
//
//	chain := Chain(Logging(logger), Timeout(5*time.Second), Recovery(logger))
//	wrapped := chain(baseOp)
func Chain(mws ...Middleware) Middleware {
	return func(next Op) Op {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging returns a middleware that logs every call with its duration.
func Logging(logger *slog.Logger, operation string) Middleware {
	return func(next Op) Op {
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)
			dur := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "operation failed",
					"operation", operation,
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "operation ok",
					"operation", operation,
					"duration_ms", dur.Milliseconds())
			}
			return err
		}
	}
}

// Timeout returns a middleware that enforces a maximum call duration.
// If the context deadline is exceeded, the wrapped goroutine keeps running
// (Go has no goroutine cancellation), but the caller gets an immediate
// context.DeadlineExceeded error.
func Timeout(d time.Duration) Middleware {
	return func(next Op) Op {
		return func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- next(ctx) }()
			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Recovery returns a middleware that catches panics in the wrapped Op and
// converts them into errors instead of crashing the process.
func Recovery(logger *slog.Logger) Middleware {
	return func(next Op) Op {
		return func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := debug.Stack()
					logger.ErrorContext(ctx, "operation panic recovered",
						"panic", r,
						"stack", string(stack))
					err = &ErrPanic{Value: r}
				}
			}()
			return next(ctx)
		}
	}
}

// ErrPanic wraps a recovered panic value as an error.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "resilience: operation panicked"
}
