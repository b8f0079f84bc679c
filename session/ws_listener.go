package session

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/occ/kit"
)

// WSListener upgrades incoming HTTP requests to WebSocket connections and
// negotiates a session over each, the server-side counterpart to WSBuilder.
type WSListener struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	handle   ConnHandler
}

// NewWSListener creates an http.Handler that upgrades and negotiates each
// incoming connection, then hands it to handle.
func NewWSListener(logger *slog.Logger, handle ConnHandler) *WSListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSListener{
		logger: logger,
		handle: handle,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (l *WSListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	stream := &wsStream{conn: conn}
	if err := ValidateMagicBytes(stream); err != nil {
		l.logger.Error("websocket magic bytes invalid", "remote", r.RemoteAddr, "error", err)
		return
	}

	sessionID, identity, err := negotiateServer(r.Context(), stream, stream)
	if err != nil {
		l.logger.Error("websocket negotiate failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	l.logger.Info("websocket session established", "session", sessionID, "remote", r.RemoteAddr, "identity", identity)
	connected := func() bool { return !stream.closed.Load() }
	closeFn := func() error { return conn.Close() }

	connCtx := kit.WithTransport(r.Context(), "ws")
	connCtx = kit.WithSessionID(connCtx, sessionID)
	connCtx = kit.WithRemoteAddr(connCtx, r.RemoteAddr)
	connCtx = kit.WithUserID(connCtx, identity)
	connCtx = kit.WithRole(connCtx, "client")
	l.handle(connCtx, newFramedChannel(stream, stream, sessionID, connected, closeFn, stream.SetReadDeadline))
}
