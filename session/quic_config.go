// Package session provides concrete occ.Builder and occ.Channel
// implementations over two framed transports: QUIC (grounded in the
// teacher's mcpquic package) and WebSocket (grounded in the pack's
// gorilla/websocket client/server usage). Both speak the same JSON-framed
// envelope wire format defined in frame.go, so the OCC core never has to
// know which one it is holding.
package session

import (
	"crypto/tls"
	"time"

	"github.com/quic-go/quic-go"
)

// ALPNProtocol is negotiated during the QUIC TLS handshake so a shared UDP
// listener can demux connections meant for this protocol from other QUIC
// users on the same port.
const ALPNProtocol = "occ/1"

// Connection-level and stream-level error codes used when a QUIC peer
// misbehaves at the framing layer, before any envelope has been exchanged.
const (
	ConnErrorNoError          quic.ApplicationErrorCode = 0x00
	ConnErrorUnsupportedALPN  quic.ApplicationErrorCode = 0x01
	ConnErrorProtocolViolation quic.ApplicationErrorCode = 0x02

	StreamErrorProtocolConfusion quic.StreamErrorCode = 0x01
)

// ProductionQUICConfig returns connection parameters tuned for a
// long-lived, mostly-idle client channel: short handshake idle timeout so a
// dead dial fails fast, but a generous keep-alive so an established session
// survives NAT rebinding without the OCC ever needing to notice.
func ProductionQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       45 * time.Second,
		KeepAlivePeriod:      15 * time.Second,
		HandshakeIdleTimeout: 5 * time.Second,
	}
}

// ClientTLSConfig returns the TLS configuration used to dial a QUIC
// listener. insecureSkipVerify should only ever be true in tests: it
// disables certificate verification entirely.
func ClientTLSConfig(insecureSkipVerify bool) *tls.Config {
	return &tls.Config{
		NextProtos:         []string{ALPNProtocol},
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS13,
	}
}

// ServerTLSConfig returns the TLS configuration used by a QUIC listener
// accepting connections for this protocol.
func ServerTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPNProtocol},
		MinVersion:   tls.VersionTLS13,
	}
}
