package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/occ/envelope"
	"github.com/hazyhaar/occ/occ"
)

// QUICBuilder is an occ.Builder that dials a QUIC listener, validates ALPN,
// opens a stream, and runs the session negotiate/authenticate handshake
// before handing the OCC an Established channel.
type QUICBuilder struct {
	addr     string
	tlsCfg   *tls.Config
	identity string
	password string
	logger   *slog.Logger

	// SendTimeout is an advertised construction parameter; BuildAndEstablish
	// does not apply it to any write. The OCC core does not interpret it
	// either; it is exposed for collaborators that want to inspect build
	// parameters (§6).
	SendTimeout time.Duration
}

// QUICBuilderOption configures a QUICBuilder.
type QUICBuilderOption func(*QUICBuilder)

// WithQUICTLSConfig overrides the default client TLS config.
func WithQUICTLSConfig(cfg *tls.Config) QUICBuilderOption {
	return func(b *QUICBuilder) { b.tlsCfg = cfg }
}

// WithQUICCredentials sets the identity/password pair presented during the
// authenticate step of session negotiation.
func WithQUICCredentials(identity, password string) QUICBuilderOption {
	return func(b *QUICBuilder) {
		b.identity = identity
		b.password = password
	}
}

// WithQUICLogger sets the logger used for handshake diagnostics.
func WithQUICLogger(logger *slog.Logger) QUICBuilderOption {
	return func(b *QUICBuilder) { b.logger = logger }
}

// WithQUICSendTimeout sets the advertised send timeout construction
// parameter (see QUICBuilder.SendTimeout).
func WithQUICSendTimeout(d time.Duration) QUICBuilderOption {
	return func(b *QUICBuilder) { b.SendTimeout = d }
}

// NewQUICBuilder creates a builder dialing addr. TLS defaults to verifying
// the server certificate; override with WithQUICTLSConfig for test doubles.
func NewQUICBuilder(addr string, opts ...QUICBuilderOption) *QUICBuilder {
	b := &QUICBuilder{
		addr:        addr,
		tlsCfg:      ClientTLSConfig(false),
		logger:      slog.Default(),
		SendTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BuildAndEstablish dials, validates ALPN, opens a stream, and negotiates a
// session. Every call performs a fresh dial: per §6 the builder is
// idempotent per-call, not a shared persistent connection.
func (b *QUICBuilder) BuildAndEstablish(ctx context.Context) (occ.Channel, error) {
	conn, err := quic.DialAddr(ctx, b.addr, b.tlsCfg, ProductionQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("quic dial %s: %w", b.addr, err)
	}

	alpn := conn.ConnectionState().TLS.NegotiatedProtocol
	if alpn != ALPNProtocol {
		conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN")
		return nil, fmt.Errorf("%w: got %q", ErrUnsupportedALPN, alpn)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(ConnErrorProtocolViolation, "stream open failed")
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if err := SendMagicBytes(stream); err != nil {
		stream.Close()
		conn.CloseWithError(ConnErrorProtocolViolation, "magic bytes failed")
		return nil, fmt.Errorf("send magic bytes: %w", err)
	}

	sessionID, err := negotiate(ctx, stream, stream, b.identity, b.password)
	if err != nil {
		stream.Close()
		conn.CloseWithError(ConnErrorProtocolViolation, "negotiation failed")
		return nil, fmt.Errorf("session negotiate: %w", err)
	}

	b.logger.DebugContext(ctx, "quic channel established", "session_id", sessionID, "addr", b.addr)

	connected := func() bool { return conn.Context().Err() == nil }
	closeFn := func() error {
		closeErr := stream.Close()
		conn.CloseWithError(ConnErrorNoError, "client releasing channel")
		return closeErr
	}
	return newFramedChannel(stream, stream, sessionID, connected, closeFn, stream.SetReadDeadline), nil
}

// negotiate runs the minimal negotiate→authenticate handshake over r/w: the
// client announces itself, the server assigns a session id (no compression/
// encryption choice is exchanged — the transport already provides both),
// then the client authenticates with identity/password. The exchange ends
// with the server reporting Established.
func negotiate(ctx context.Context, r io.Reader, w io.Writer, identity, password string) (string, error) {
	clientID := "client_" + uuid.NewString()
	if err := writeFrame(w, frameSession, &envelope.Session{
		ID:    clientID,
		From:  identity,
		State: envelope.StateNegotiating,
	}); err != nil {
		return "", fmt.Errorf("send negotiating: %w", err)
	}

	negotiated, err := readSession(r)
	if err != nil {
		return "", fmt.Errorf("receive negotiated: %w", err)
	}
	if negotiated.State != envelope.StateNegotiating {
		return "", fmt.Errorf("expected negotiating response, got %s", negotiated.State)
	}

	if err := writeFrame(w, frameSession, &envelope.Session{
		ID:     negotiated.ID,
		From:   identity,
		State:  envelope.StateAuthenticating,
		Reason: password,
	}); err != nil {
		return "", fmt.Errorf("send authenticating: %w", err)
	}

	established, err := readSession(r)
	if err != nil {
		return "", fmt.Errorf("receive established: %w", err)
	}
	if established.State != envelope.StateEstablished {
		return "", fmt.Errorf("authentication rejected: state=%s reason=%s", established.State, established.Reason)
	}
	return established.ID, nil
}
