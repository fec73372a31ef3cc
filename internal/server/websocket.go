package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/protocol"
	"github.com/muurk/banddump/internal/syncutil"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	LogRequestDetails(r)

	if !s.acceptsDevice(r) {
		http.Error(w, fmt.Sprintf("tracker %q not in range", r.URL.Query().Get("device")), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	remoteAddr := r.RemoteAddr
	s.track(remoteAddr, conn)
	s.wg.Add(1)
	defer func() {
		s.untrack(remoteAddr)
		s.wg.Done()
		logging.LogLinkEvent(remoteAddr, "link_closed")
	}()
	logging.LogLinkEvent(remoteAddr, "link_opened")

	port := &wsPort{conn: conn, remoteAddr: remoteAddr}
	defer port.Close()

	if err := s.tracker.Serve(s.ctx, port); err != nil {
		logging.Error("Link error",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
	}
}

// wsPort carries frames of one WebSocket link to the emulated tracker
type wsPort struct {
	conn       *websocket.Conn
	remoteAddr string
	writeMu    syncutil.Mutex
	closed     bool
}

// Send writes one frame as a binary message
func (p *wsPort) Send(ctx context.Context, f protocol.Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", link.ErrClosed, err)
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, f[:]); err != nil {
		return fmt.Errorf("%w: %v", link.ErrClosed, err)
	}
	return nil
}

// Recv reads the next frame. Text messages and wrong-sized binaries are
// logged and skipped.
func (p *wsPort) Recv(ctx context.Context) (protocol.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return protocol.Frame{}, err
		}

		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			return protocol.Frame{}, fmt.Errorf("%w: %v", link.ErrClosed, err)
		}

		if msgType != websocket.BinaryMessage {
			logging.Debug("Ignoring text message",
				zap.String("remote_addr", p.remoteAddr),
				zap.String("content", string(data)),
			)
			continue
		}

		f, err := protocol.FrameFromBytes(data)
		if err != nil {
			logging.Warn("Ignoring malformed frame",
				zap.String("remote_addr", p.remoteAddr),
				zap.Error(err),
			)
			logging.LogRawBytes("Malformed frame", data)
			continue
		}
		logging.LogFrame(nil, "rx", 0, f[:])
		return f, nil
	}
}

// Close sends a close message and drops the connection
func (p *wsPort) Close() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return p.conn.Close()
}
