// Package resilience provides reusable failure-handling primitives — a
// circuit breaker, exponential backoff, and call-wrapping middleware — used
// by the session builder to guard repeated connection attempts against a
// struggling peer. It does not know about envelopes, channels, or the OCC
// rebuild loop; it only guards arbitrary retried operations.
package resilience

import "fmt"

// ErrCallTimeout describes a guarded call that exceeded its configured
// timeout. Nothing in this package returns it: the Timeout middleware
// reports context.DeadlineExceeded instead.
type ErrCallTimeout struct {
	Operation string
}

func (e *ErrCallTimeout) Error() string {
	return fmt.Sprintf("resilience: call timeout: %s", e.Operation)
}

// ErrCircuitOpen is returned when the circuit breaker for an operation is
// open, rejecting the call without attempting it. Channel carries the
// breaker's name (see WithBreakerName) when the guarded operation is a
// channel rebuild, so a caller juggling several channels can tell which one
// tripped; it is empty for a breaker constructed without a name.
type ErrCircuitOpen struct {
	Operation string
	Channel   string
}

func (e *ErrCircuitOpen) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("resilience: circuit open: %s", e.Operation)
	}
	return fmt.Sprintf("resilience: circuit open: %s (channel %s)", e.Operation, e.Channel)
}
