package occ

import (
	"context"
	"sync/atomic"

	"github.com/hazyhaar/occ/envelope"
)

// OCC is the on-demand client channel façade. It lazily builds an
// underlying Channel via Builder, serves send/receive/process operations
// through it, detects failures, and rebuilds transparently. An OCC is safe
// for concurrent use by multiple goroutines.
type OCC struct {
	holder   *holder
	handlers *Handlers
	disposed atomic.Bool
}

// New creates an OCC bound to the given builder. No channel is built until
// the first operation is performed.
func New(builder Builder) *OCC {
	h := &Handlers{}
	return &OCC{
		holder:   newHolder(builder, h),
		handlers: h,
	}
}

// Handlers exposes the four observer registration points.
func (o *OCC) Handlers() *Handlers { return o.handlers }

func (o *OCC) isDisposed() bool { return o.disposed.Load() }

// SendMessage sends m over the (possibly freshly built) underlying channel,
// rebuilding and retrying on operational failure per the executor contract.
func (o *OCC) SendMessage(ctx context.Context, m *envelope.Message) error {
	_, err := executeOp(ctx, o, "send_message", false, func(ctx context.Context, ch Channel) (struct{}, error) {
		return struct{}{}, ch.SendMessage(ctx, m)
	})
	return err
}

// SendNotification sends n, with the same rebuild/retry contract as SendMessage.
func (o *OCC) SendNotification(ctx context.Context, n *envelope.Notification) error {
	_, err := executeOp(ctx, o, "send_notification", false, func(ctx context.Context, ch Channel) (struct{}, error) {
		return struct{}{}, ch.SendNotification(ctx, n)
	})
	return err
}

// SendCommand sends c, with the same rebuild/retry contract as SendMessage.
func (o *OCC) SendCommand(ctx context.Context, c *envelope.Command) error {
	_, err := executeOp(ctx, o, "send_command", false, func(ctx context.Context, ch Channel) (struct{}, error) {
		return struct{}{}, ch.SendCommand(ctx, c)
	})
	return err
}

// ReceiveMessage blocks until a message arrives or ctx is cancelled,
// forwarding ctx through both channel acquisition and the underlying receive.
func (o *OCC) ReceiveMessage(ctx context.Context) (*envelope.Message, error) {
	return executeOp(ctx, o, "receive_message", true, func(ctx context.Context, ch Channel) (*envelope.Message, error) {
		return ch.ReceiveMessage(ctx)
	})
}

// ReceiveNotification blocks until a notification arrives, per ReceiveMessage.
func (o *OCC) ReceiveNotification(ctx context.Context) (*envelope.Notification, error) {
	return executeOp(ctx, o, "receive_notification", true, func(ctx context.Context, ch Channel) (*envelope.Notification, error) {
		return ch.ReceiveNotification(ctx)
	})
}

// ReceiveCommand blocks until a command arrives, per ReceiveMessage.
func (o *OCC) ReceiveCommand(ctx context.Context) (*envelope.Command, error) {
	return executeOp(ctx, o, "receive_command", true, func(ctx context.Context, ch Channel) (*envelope.Command, error) {
		return ch.ReceiveCommand(ctx)
	})
}
