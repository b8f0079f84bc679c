package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/occ/envelope"
	"github.com/hazyhaar/occ/kit"
	"github.com/hazyhaar/occ/occ"
)

// QUICListener accepts QUIC connections for this protocol and hands each
// one to a ConnHandler. It exists so cmd/occdemo can run a self-contained
// peer to dial against; the OCC core itself never imports this type.
type QUICListener struct {
	listener *quic.Listener
	logger   *slog.Logger
}

// ConnHandler processes one negotiated stream's envelope traffic. It
// receives occ.Channel rather than the concrete framedChannel so callers
// outside this package (cmd/occdemo) can implement handlers without
// reaching into session internals.
type ConnHandler func(ctx context.Context, ch occ.Channel)

// ListenQUIC starts listening on addr with the given server certificate.
func ListenQUIC(addr string, cert tls.Certificate, logger *slog.Logger) (*QUICListener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l, err := quic.ListenAddr(addr, ServerTLSConfig(cert), ProductionQUICConfig())
	if err != nil {
		return nil, fmt.Errorf("quic listen %s: %w", addr, err)
	}
	logger.Info("quic listener ready", "addr", addr)
	return &QUICListener{listener: l, logger: logger}, nil
}

// Serve accepts connections until ctx is cancelled, dispatching each
// negotiated stream to handle.
func (l *QUICListener) Serve(ctx context.Context, handle ConnHandler) error {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("quic accept error", "error", err)
			continue
		}
		go l.serveConn(ctx, conn, handle)
	}
}

func (l *QUICListener) serveConn(ctx context.Context, conn *quic.Conn, handle ConnHandler) {
	remote := conn.RemoteAddr().String()

	alpn := conn.ConnectionState().TLS.NegotiatedProtocol
	if alpn != ALPNProtocol {
		conn.CloseWithError(ConnErrorUnsupportedALPN, "unsupported ALPN")
		return
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Error("quic accept stream failed", "remote", remote, "error", err)
		conn.CloseWithError(ConnErrorProtocolViolation, "stream accept failed")
		return
	}

	if err := ValidateMagicBytes(stream); err != nil {
		l.logger.Error("quic magic bytes invalid", "remote", remote, "error", err)
		stream.CancelWrite(StreamErrorProtocolConfusion)
		stream.CancelRead(StreamErrorProtocolConfusion)
		conn.CloseWithError(ConnErrorProtocolViolation, "invalid magic bytes")
		return
	}

	sessionID, identity, err := negotiateServer(ctx, stream, stream)
	if err != nil {
		l.logger.Error("quic negotiate failed", "remote", remote, "error", err)
		stream.Close()
		return
	}

	l.logger.Info("quic session established", "session", sessionID, "remote", remote, "identity", identity)
	connected := func() bool { return conn.Context().Err() == nil }
	closeFn := func() error {
		closeErr := stream.Close()
		conn.CloseWithError(ConnErrorNoError, "server releasing channel")
		return closeErr
	}

	connCtx := kit.WithTransport(ctx, "quic")
	connCtx = kit.WithSessionID(connCtx, sessionID)
	connCtx = kit.WithRemoteAddr(connCtx, remote)
	connCtx = kit.WithUserID(connCtx, identity)
	connCtx = kit.WithRole(connCtx, "client")
	handle(connCtx, newFramedChannel(stream, stream, sessionID, connected, closeFn, stream.SetReadDeadline))
}

// Close stops accepting new connections.
func (l *QUICListener) Close() error {
	return l.listener.Close()
}

// negotiateServer mirrors negotiate's client steps from the server's
// perspective: assign a session id, echo the negotiating step, accept any
// non-empty credentials, and report Established. It returns both the
// assigned session id and the authenticated identity (envelope.Session.From)
// so callers can attach both to the connection context.
func negotiateServer(ctx context.Context, r io.Reader, w io.Writer) (string, string, error) {
	clientHello, err := readSession(r)
	if err != nil {
		return "", "", fmt.Errorf("receive negotiating: %w", err)
	}
	if clientHello.State != envelope.StateNegotiating {
		return "", "", fmt.Errorf("expected negotiating, got %s", clientHello.State)
	}

	sessionID := "srv_" + clientHello.ID
	if err := writeFrame(w, frameSession, &envelope.Session{
		ID:    sessionID,
		State: envelope.StateNegotiating,
	}); err != nil {
		return "", "", fmt.Errorf("send negotiated: %w", err)
	}

	authAttempt, err := readSession(r)
	if err != nil {
		return "", "", fmt.Errorf("receive authenticating: %w", err)
	}
	if authAttempt.State != envelope.StateAuthenticating {
		return "", "", fmt.Errorf("expected authenticating, got %s", authAttempt.State)
	}
	if authAttempt.From == "" || authAttempt.Reason == "" {
		if err := writeFrame(w, frameSession, &envelope.Session{
			ID:     sessionID,
			State:  envelope.StateFailed,
			Reason: "missing credentials",
		}); err != nil {
			return "", "", err
		}
		return "", "", fmt.Errorf("authentication rejected: missing credentials")
	}

	if err := writeFrame(w, frameSession, &envelope.Session{
		ID:    sessionID,
		State: envelope.StateEstablished,
	}); err != nil {
		return "", "", fmt.Errorf("send established: %w", err)
	}
	return sessionID, authAttempt.From, nil
}
