package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/occ/occ"
)

// WSBuilder is an occ.Builder that dials a WebSocket endpoint and runs the
// same negotiate/authenticate handshake as QUICBuilder, over a
// websocket.Conn wrapped as a byte stream.
type WSBuilder struct {
	url      string
	identity string
	password string
	logger   *slog.Logger
	dialer   *websocket.Dialer

	// SendTimeout mirrors QUICBuilder.SendTimeout (see §6: exposed read-only,
	// uninterpreted by the OCC core).
	SendTimeout time.Duration
}

// WSBuilderOption configures a WSBuilder.
type WSBuilderOption func(*WSBuilder)

// WithWSCredentials sets the identity/password pair presented during
// authenticate.
func WithWSCredentials(identity, password string) WSBuilderOption {
	return func(b *WSBuilder) {
		b.identity = identity
		b.password = password
	}
}

// WithWSLogger sets the logger used for handshake diagnostics.
func WithWSLogger(logger *slog.Logger) WSBuilderOption {
	return func(b *WSBuilder) { b.logger = logger }
}

// WithWSDialer overrides the default websocket.Dialer (e.g. for custom TLS
// config or handshake timeout in tests).
func WithWSDialer(d *websocket.Dialer) WSBuilderOption {
	return func(b *WSBuilder) { b.dialer = d }
}

// NewWSBuilder creates a builder dialing the given ws:// or wss:// url.
func NewWSBuilder(url string, opts ...WSBuilderOption) *WSBuilder {
	b := &WSBuilder{
		url:         url,
		logger:      slog.Default(),
		dialer:      websocket.DefaultDialer,
		SendTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BuildAndEstablish dials the WebSocket endpoint, sends the magic-bytes
// preamble as a binary frame, and negotiates a session.
func (b *WSBuilder) BuildAndEstablish(ctx context.Context) (occ.Channel, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", b.url, err)
	}

	stream := &wsStream{conn: conn}
	if err := SendMagicBytes(stream); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send magic bytes: %w", err)
	}

	sessionID, err := negotiate(ctx, stream, stream, b.identity, b.password)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("session negotiate: %w", err)
	}

	b.logger.DebugContext(ctx, "websocket channel established", "session_id", sessionID, "url", b.url)

	connected := func() bool { return !stream.closed.Load() }
	closeFn := func() error { return conn.Close() }
	return newFramedChannel(stream, stream, sessionID, connected, closeFn, stream.SetReadDeadline), nil
}
