package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/occ/envelope"
)

// noDeadline clears a read deadline after a cancelled receive, the zero
// value net.Conn.SetReadDeadline documents as "no deadline".
var noDeadline time.Time

// framedChannel implements occ.Channel over any io.Reader/io.Writer pair
// that already speaks the magic-bytes-then-length-prefixed-JSON wire
// format. QUIC and WebSocket transports each construct one of these over
// their own stream/connection; all envelope framing logic lives here once.
//
// Reads and writes are independently serialized: two sends never interleave
// their frames, and two receives never race on the same bytes, but a send
// and a receive can proceed concurrently on the same channel, per the
// concurrency model's "serialization within the underlying channel is its
// own responsibility" clause.
type framedChannel struct {
	r io.Reader
	w io.Writer

	writeMu sync.Mutex
	readMu  sync.Mutex

	sessionID string
	state     atomic.Value // envelope.State

	isConnected     func() bool
	closeFn         func() error
	setReadDeadline func(time.Time) error
	released        atomic.Bool
}

// newFramedChannel wraps r/w as an occ.Channel. setReadDeadline, when
// non-nil, is the transport's deadline hook (quic.Stream.SetReadDeadline or
// the websocket conn's), used to race a blocked read against ctx
// cancellation — see receiveFramed.
func newFramedChannel(r io.Reader, w io.Writer, sessionID string, connected func() bool, closeFn func() error, setReadDeadline func(time.Time) error) *framedChannel {
	c := &framedChannel{
		r:               r,
		w:               w,
		sessionID:       sessionID,
		isConnected:     connected,
		closeFn:         closeFn,
		setReadDeadline: setReadDeadline,
	}
	c.state.Store(envelope.StateEstablished)
	return c
}

// receiveFramed runs a blocking read under readMu, racing it against ctx
// cancellation. If ctx is cancelled or its deadline expires first, it forces
// the underlying read to return immediately via setReadDeadline, then
// reports ctx.Err() instead of the resulting I/O error, and clears the
// deadline again so the channel stays usable for the next receive — a
// cancelled op must not discard the channel (§5).
func receiveFramed[T any](ctx context.Context, c *framedChannel, read func(io.Reader) (T, error)) (T, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.setReadDeadline == nil || ctx.Done() == nil {
		return read(c.r)
	}

	stopWatch := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			c.setReadDeadline(time.Unix(0, 1))
		case <-stopWatch:
		}
	}()

	result, err := read(c.r)
	close(stopWatch)
	<-watchDone
	c.setReadDeadline(noDeadline)

	if err != nil && ctx.Err() != nil {
		var zero T
		return zero, ctx.Err()
	}
	return result, err
}

func (c *framedChannel) SendMessage(ctx context.Context, m *envelope.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.w, frameMessage, m)
}

func (c *framedChannel) SendNotification(ctx context.Context, n *envelope.Notification) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.w, frameNotification, n)
}

func (c *framedChannel) SendCommand(ctx context.Context, cmd *envelope.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.w, frameCommand, cmd)
}

func (c *framedChannel) ReceiveMessage(ctx context.Context) (*envelope.Message, error) {
	return receiveFramed(ctx, c, readMessage)
}

func (c *framedChannel) ReceiveNotification(ctx context.Context) (*envelope.Notification, error) {
	return receiveFramed(ctx, c, readNotification)
}

func (c *framedChannel) ReceiveCommand(ctx context.Context) (*envelope.Command, error) {
	return receiveFramed(ctx, c, readCommand)
}

func (c *framedChannel) SendFinishingSession(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.state.Store(envelope.StateFinishing)
	return writeFrame(c.w, frameSession, &envelope.Session{
		ID:    c.sessionID,
		State: envelope.StateFinishing,
	})
}

func (c *framedChannel) ReceiveFinishedSession(ctx context.Context) (*envelope.Session, error) {
	s, err := receiveFramed(ctx, c, readSession)
	if err != nil {
		return nil, err
	}
	if s.State != envelope.StateFinished {
		return s, fmt.Errorf("session: expected finished state, got %s", s.State)
	}
	c.state.Store(envelope.StateFinished)
	return s, nil
}

func (c *framedChannel) SessionID() string { return c.sessionID }

func (c *framedChannel) State() envelope.State {
	return c.state.Load().(envelope.State)
}

func (c *framedChannel) IsConnected() bool {
	return c.isConnected()
}

func (c *framedChannel) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}
