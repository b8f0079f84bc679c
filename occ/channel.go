package occ

import (
	"context"

	"github.com/hazyhaar/occ/envelope"
)

// Channel is the underlying authenticated session channel produced by a
// Builder. Implementations live outside this package (see the session
// package for QUIC and WebSocket transports). A Channel is single-owner:
// the occ that built it is responsible for calling Release exactly once.
type Channel interface {
	SendMessage(ctx context.Context, m *envelope.Message) error
	SendNotification(ctx context.Context, n *envelope.Notification) error
	SendCommand(ctx context.Context, c *envelope.Command) error

	ReceiveMessage(ctx context.Context) (*envelope.Message, error)
	ReceiveNotification(ctx context.Context) (*envelope.Notification, error)
	ReceiveCommand(ctx context.Context) (*envelope.Command, error)

	SendFinishingSession(ctx context.Context) error
	ReceiveFinishedSession(ctx context.Context) (*envelope.Session, error)

	SessionID() string
	State() envelope.State
	IsConnected() bool

	// Release idempotently tears down the channel's resources. Discard and
	// Finish swallow its error; Dispose returns it to the caller.
	Release() error
}

// Builder produces a ready-to-use Channel in state Established, or fails.
// Idempotent per call: each invocation performs a fresh transport open,
// session negotiation, and authentication.
type Builder interface {
	BuildAndEstablish(ctx context.Context) (Channel, error)
}

// BuilderFunc adapts a plain function to a Builder.
type BuilderFunc func(ctx context.Context) (Channel, error)

func (f BuilderFunc) BuildAndEstablish(ctx context.Context) (Channel, error) {
	return f(ctx)
}

func channelInfo(ch Channel) ChannelInformation {
	return ChannelInformation{ID: ch.SessionID(), State: ch.State()}
}

func isConnectedAndEstablished(ch Channel) bool {
	if ch == nil {
		return false
	}
	return ch.IsConnected() && ch.State() == envelope.StateEstablished
}
