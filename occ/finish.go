package occ

import (
	"context"

	"github.com/hazyhaar/occ/envelope"
)

// Finish performs the graceful termination path: if a current channel
// exists and is Established, it sends a finishing session envelope and
// awaits the finished response; the channel is released unconditionally
// afterward regardless of outcome. If no channel exists, or its state is
// not Established, the send/receive step is skipped but any existing
// channel is still released.
//
// Finish does not fire on_discarded — it is a graceful termination, not a
// failure-driven discard.
func (o *OCC) Finish(ctx context.Context) error {
	ch := o.holder.clearCurrent()
	if ch == nil {
		return nil
	}
	defer ch.Release()

	if ch.State() != envelope.StateEstablished {
		return nil
	}

	if err := ch.SendFinishingSession(ctx); err != nil {
		return err
	}
	_, err := ch.ReceiveFinishedSession(ctx)
	return err
}
