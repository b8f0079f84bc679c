package occ

import "context"

// Dispose marks the OCC disposed and releases the current underlying
// channel if any. Idempotent: calling it more than once is a no-op after
// the first call. After disposal every operation fails immediately with
// ErrDisposed, before consulting the holder or invoking any handler.
//
// Dispose does not cancel in-flight operations; they observe disposal on
// their next iteration of the executor loop.
func (o *OCC) Dispose(ctx context.Context) error {
	if !o.disposed.CompareAndSwap(false, true) {
		return nil
	}
	if ch := o.holder.clearCurrent(); ch != nil {
		return ch.Release()
	}
	return nil
}

// Disposed reports whether Dispose has been called.
func (o *OCC) Disposed() bool { return o.isDisposed() }
