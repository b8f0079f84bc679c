package occ

import (
	"context"
	"time"
)

// detachedContext carries a parent's values but never reports cancellation
// or a deadline of its own. Used for send operations, which per §4.3.1 use
// an internal token rather than the caller-supplied one.
type detachedContext struct {
	parent context.Context
}

func (d detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (d detachedContext) Done() <-chan struct{}       { return nil }
func (d detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(key any) any           { return d.parent.Value(key) }

// executeOp runs the generic retry/rebuild loop shared by every send/receive
// operation. fn is the underlying-channel action bound to the envelope kind
// the caller wants (e.g. ch.SendMessage, ch.ReceiveCommand). name is used
// only for FailedChannelInformation.OperationName.
//
// The loop terminates on success, cancellation, disposal, or a veto from
// on_operation_failed. Cancellation errors never discard the channel and
// never invoke failure handlers.
//
// watchCancellation controls whether the caller's ctx is honored as a
// cancellation source. Receive operations pass true: ctx propagates through
// both channel acquisition and the underlying receive. Send operations pass
// false: per §4.3.1 they use an internal token, so caller cancellation never
// aborts an in-flight send — only disposal does.
func executeOp[T any](ctx context.Context, o *OCC, name string, watchCancellation bool, fn func(ctx context.Context, ch Channel) (T, error)) (T, error) {
	var zero T
	buildCtx := ctx
	if !watchCancellation {
		buildCtx = detachedContext{ctx}
	}

	for {
		if o.isDisposed() {
			return zero, &ErrDisposed{}
		}
		if watchCancellation {
			if err := ctx.Err(); err != nil {
				return zero, &ErrCancelled{Cause: err}
			}
		}

		ch, err := o.holder.getChannel(buildCtx)
		if err != nil {
			return zero, err
		}

		result, opErr := fn(buildCtx, ch)
		if opErr == nil {
			return result, nil
		}

		if watchCancellation && ctx.Err() != nil {
			// The caller gave up mid-operation; this is cancellation, not an
			// operational failure. The channel is left intact.
			return zero, &ErrCancelled{Cause: ctx.Err()}
		}

		fci := FailedChannelInformation{
			ID:            ch.SessionID(),
			HasID:         true,
			State:         ch.State(),
			HasState:      true,
			IsConnected:   isConnectedAndEstablished(ch),
			Err:           opErr,
			OperationName: name,
		}

		if err := o.holder.discard(buildCtx); err != nil {
			return zero, err
		}

		verdict, handlerErr := o.handlers.fireOperationFailed(fci)
		if handlerErr != nil {
			return zero, &ErrHandlerFailed{Cause: handlerErr}
		}
		if !verdict {
			return zero, &ErrOperationFailed{Operation: name, Cause: opErr}
		}
		// else: loop — the next iteration builds a fresh channel.
	}
}
