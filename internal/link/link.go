package link

import (
	"context"
	"errors"

	"github.com/muurk/banddump/internal/protocol"
)

// ErrClosed is returned (possibly wrapped) once the link to the tracker is
// gone. The session maps it to the Disconnected state.
var ErrClosed = errors.New("link closed")

// ErrNotConnected is returned by Send and Recv before Connect succeeds
var ErrNotConnected = errors.New("link not connected")

// Transport is the duplex frame channel to the tracker.
//
// A Transport has a single owner: only one goroutine may call Send and Recv.
// Recv blocks until a frame arrives, the link closes or ctx is done.
type Transport interface {
	// Connect establishes the link and returns once frames can flow
	Connect(ctx context.Context) error

	// Send writes one frame
	Send(ctx context.Context, f protocol.Frame) error

	// Recv returns the next inbound frame
	Recv(ctx context.Context) (protocol.Frame, error)

	// Close tears the link down. Pending and later calls fail with ErrClosed.
	Close() error

	// Type returns the transport type
	Type() Type
}

// Type names a transport implementation
type Type string

const (
	// TypeWebSocket is a BLE bridge reached over WebSocket
	TypeWebSocket Type = "websocket"
	// TypeSerial is a BLE bridge dongle on a serial port
	TypeSerial Type = "serial"
	// TypePipe is an in-memory link (tests, emulator)
	TypePipe Type = "pipe"
	// TypeReplay replays a capture file
	TypeReplay Type = "replay"
)

// IsClosed reports whether err means the link is gone
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// frameFromMessage converts a bridge message into a frame. Bridges deliver
// one notification per message, so anything but 20 bytes is an error.
func frameFromMessage(data []byte) (protocol.Frame, error) {
	return protocol.FrameFromBytes(data)
}
