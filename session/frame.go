package session

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hazyhaar/occ/envelope"
)

// ErrUnsupportedALPN is returned when a QUIC peer negotiates a protocol
// other than ALPNProtocol.
var ErrUnsupportedALPN = errors.New("session: unsupported ALPN protocol")

// magicBytes identifies an occ framed stream before any envelope traffic,
// so a confused peer (wrong protocol, stale client) is rejected immediately
// instead of producing a cryptic JSON parse error three frames later.
var magicBytes = [4]byte{'O', 'C', 'C', '1'}

// SendMagicBytes writes the protocol preamble to w.
func SendMagicBytes(w io.Writer) error {
	_, err := w.Write(magicBytes[:])
	return err
}

// ValidateMagicBytes reads and checks the protocol preamble from r.
func ValidateMagicBytes(r io.Reader) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return fmt.Errorf("read magic bytes: %w", err)
	}
	if got != magicBytes {
		return fmt.Errorf("session: bad magic bytes %q", got)
	}
	return nil
}

// frameKind tags each frame with the envelope kind it carries, so the
// receive loop can decode into the right Go type without sniffing JSON.
type frameKind byte

const (
	frameMessage frameKind = iota + 1
	frameNotification
	frameCommand
	frameSession
)

// writeFrame marshals v to JSON and writes it as a length-prefixed frame:
// [1-byte kind][4-byte big-endian length][JSON payload]. The whole frame is
// handed to a single Write call so message-oriented transports (WebSocket)
// can map one frame to exactly one wire message.
func writeFrame(w io.Writer, kind frameKind, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	buf := make([]byte, 5+len(payload))
	buf[0] = byte(kind)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame and returns its kind and raw
// JSON payload, leaving decoding into a concrete type to the caller.
func readFrame(r io.Reader) (frameKind, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}
	kind := frameKind(header[0])
	length := binary.BigEndian.Uint32(header[1:])

	const maxFrameBytes = 16 << 20 // 16MiB: generous, but bounds a hostile length field
	if length > maxFrameBytes {
		return 0, nil, fmt.Errorf("session: frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return kind, payload, nil
}

// readMessage, readNotification, readCommand and readSession each want one
// specific frame kind; receiving any other kind on the same call is a
// protocol-level surprise from a peer that shouldn't be sending it here.
func readMessage(r io.Reader) (*envelope.Message, error) {
	kind, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if kind != frameMessage {
		return nil, fmt.Errorf("session: expected message frame, got kind %d", kind)
	}
	var m envelope.Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

func readNotification(r io.Reader) (*envelope.Notification, error) {
	kind, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if kind != frameNotification {
		return nil, fmt.Errorf("session: expected notification frame, got kind %d", kind)
	}
	var n envelope.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

func readCommand(r io.Reader) (*envelope.Command, error) {
	kind, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if kind != frameCommand {
		return nil, fmt.Errorf("session: expected command frame, got kind %d", kind)
	}
	var c envelope.Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &c, nil
}

func readSession(r io.Reader) (*envelope.Session, error) {
	kind, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if kind != frameSession {
		return nil, fmt.Errorf("session: expected session frame, got kind %d", kind)
	}
	var s envelope.Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
