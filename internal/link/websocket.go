package link

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/protocol"
	"github.com/muurk/banddump/internal/syncutil"
)

const (
	// Time allowed to write a frame to the bridge
	writeWait = 10 * time.Second

	// Bridges never send more than one notification per message
	maxMessageSize = 512
)

type rxResult struct {
	frame protocol.Frame
	err   error
}

// WebSocket is a Transport to a BLE bridge that relays each frame as one
// binary WebSocket message
type WebSocket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	conn      *websocket.Conn
	writeMu   syncutil.Mutex
	rx        chan rxResult
	lost      chan struct{} // closed when the read loop exits
	done      chan struct{} // closed by Close
	closeOnce sync.Once
}

// NewWebSocket creates a transport for the bridge at url (ws:// or wss://).
// The connection is opened by Connect.
func NewWebSocket(url string, header http.Header) *WebSocket {
	return &WebSocket{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		rx:   make(chan rxResult, protocol.PacketsInBlock),
		lost: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// URL returns the bridge URL
func (w *WebSocket) URL() string {
	return w.url
}

// SetTLSConfig sets the client TLS configuration used for wss:// bridges
func (w *WebSocket) SetTLSConfig(cfg *tls.Config) {
	w.dialer.TLSClientConfig = cfg
}

// Connect dials the bridge and starts the read loop
func (w *WebSocket) Connect(ctx context.Context) error {
	select {
	case <-w.done:
		return fmt.Errorf("websocket connect: %w", ErrClosed)
	default:
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to bridge %s (HTTP %d): %w", w.url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to bridge %s: %w", w.url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	w.conn = conn
	logging.LogLinkEvent(w.url, "websocket_connected")

	go w.readLoop()
	return nil
}

// readLoop is the only reader of the connection
func (w *WebSocket) readLoop() {
	defer close(w.lost)

	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			logging.Info("Bridge connection closed",
				zap.String("url", w.url),
				zap.Error(err),
			)
			w.deliver(rxResult{err: fmt.Errorf("websocket read: %w (%v)", ErrClosed, err)})
			return
		}

		if msgType != websocket.BinaryMessage {
			// Bridges send status text (battery, RSSI) between frames
			logging.LogRawBytes("Ignoring non-binary bridge message", data)
			continue
		}

		f, err := frameFromMessage(data)
		if err != nil {
			logging.LogRawBytes("Malformed bridge message", data)
		}
		if !w.deliver(rxResult{frame: f, err: err}) {
			return
		}
	}
}

func (w *WebSocket) deliver(r rxResult) bool {
	select {
	case w.rx <- r:
		return true
	case <-w.done:
		return false
	}
}

// Send writes one frame as a binary message
func (w *WebSocket) Send(ctx context.Context, f protocol.Frame) error {
	if w.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("websocket write: %w (%v)", ErrClosed, err)
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, f[:]); err != nil {
		return fmt.Errorf("websocket write: %w (%v)", ErrClosed, err)
	}
	return nil
}

// Recv returns the next frame relayed by the bridge
func (w *WebSocket) Recv(ctx context.Context) (protocol.Frame, error) {
	if w.conn == nil {
		return protocol.Frame{}, ErrNotConnected
	}

	// Frames already relayed come before any closure
	select {
	case r := <-w.rx:
		return r.frame, r.err
	default:
	}

	select {
	case r := <-w.rx:
		return r.frame, r.err
	case <-w.lost:
		// The read loop queues everything, its final error included, before
		// it exits
		select {
		case r := <-w.rx:
			return r.frame, r.err
		default:
		}
		return protocol.Frame{}, fmt.Errorf("websocket recv: %w", ErrClosed)
	case <-w.done:
		return protocol.Frame{}, fmt.Errorf("websocket recv: %w", ErrClosed)
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	}
}

// Close sends a close message and shuts the connection down
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.conn == nil {
			return
		}

		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()

		err = w.conn.Close()
		logging.LogLinkEvent(w.url, "websocket_closed")
	})
	return err
}

// Type implements Transport
func (*WebSocket) Type() Type {
	return TypeWebSocket
}
