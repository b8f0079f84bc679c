package session

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsStream adapts a message-oriented websocket.Conn to the byte-stream
// io.Reader/io.Writer pair framedChannel expects. Each Write call becomes
// exactly one binary WS message (see writeFrame's single-Write-per-frame
// contract); Read drains one WS message at a time into an internal buffer
// so io.ReadFull can satisfy arbitrary read sizes across message boundaries.
type wsStream struct {
	conn   *websocket.Conn
	buf    []byte
	closed atomic.Bool
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			s.closed.Store(true)
			return 0, err
		}
		if kind != websocket.BinaryMessage {
			continue // ignore control/text frames at this layer
		}
		s.buf = data
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// SetReadDeadline forces a blocked Read to return, the hook receiveFramed
// uses to race a read against ctx cancellation.
func (s *wsStream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

var _ io.ReadWriter = (*wsStream)(nil)
