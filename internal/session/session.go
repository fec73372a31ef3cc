package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/protocol"
)

// Sink receives the finished flash image
type Sink interface {
	Persist(image []byte) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(image []byte) error

// Persist implements Sink
func (f SinkFunc) Persist(image []byte) error {
	return f(image)
}

// Result summarises a completed download
type Result struct {
	Firmware string
	Info     protocol.DataInfo
	Image    []byte
	Duration time.Duration
}

// Session drives one tracker download over a transport. It is the only
// user of the transport while Run executes.
type Session struct {
	transport link.Transport
	sink      Sink
	config    Config
	logger    *zap.Logger

	events  chan Event
	state   State
	seq     int
	started atomic.Bool
}

// New creates a session. The session takes ownership of t and closes it
// when Run returns.
func New(t link.Transport, sink Sink, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	return &Session{
		transport: t,
		sink:      sink,
		config:    cfg,
		logger:    logger.With(zap.String("link", string(t.Type()))),
		events:    make(chan Event, EventBuffer),
		state:     Pairing,
	}
}

// Events returns the observer channel. It is closed when Run returns.
// No event is dropped, so a session whose events nobody reads stops at the
// third transition.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Config returns the effective configuration
func (s *Session) Config() Config {
	return s.config
}

// Run performs the whole download: connect, handshake, data range query,
// block transfer and persistence. It can be called once.
func (s *Session) Run(ctx context.Context) (result *Result, err error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	start := time.Now()
	defer close(s.events)
	defer func() {
		if cerr := s.transport.Close(); cerr != nil {
			s.logger.Debug("Transport close failed", zap.Error(cerr))
		}
	}()
	defer func() {
		if err != nil && link.IsClosed(err) {
			s.disconnected(ctx)
		}
		if err != nil {
			s.logger.Error("Download failed", zap.String("state", s.state.String()), zap.Error(err))
		}
	}()

	if err := s.emitState(ctx, Pairing); err != nil {
		return nil, err
	}

	if err := s.transport.Connect(ctx); err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	if err := s.emitState(ctx, Connected); err != nil {
		return nil, err
	}

	firmware, err := s.handshake(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.emitState(ctx, Ready); err != nil {
		return nil, err
	}

	info, err := s.dataInfo(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.emitState(ctx, Receiving); err != nil {
		return nil, err
	}

	image, err := s.download(ctx, info)
	if err != nil {
		return nil, err
	}

	if err := s.sink.Persist(image); err != nil {
		return nil, &SinkError{Size: len(image), Err: err}
	}
	s.logger.Info("Image persisted", zap.Int("bytes", len(image)))

	if s.config.FinishAck {
		if err := s.finish(ctx, info); err != nil {
			return nil, err
		}
	}

	if err := s.emitState(ctx, Ready); err != nil {
		return nil, err
	}

	return &Result{
		Firmware: firmware,
		Info:     info,
		Image:    image,
		Duration: time.Since(start),
	}, nil
}

// handshake checks the firmware version and pairs
func (s *Session) handshake(ctx context.Context) (string, error) {
	resp, err := s.exchange(ctx, protocol.NewCommand(protocol.CmdGetVersion))
	if err != nil {
		return "", asHandshake("GetVersion", err)
	}
	fw, ok := resp.(*protocol.FirmwareVersion)
	if !ok {
		return "", protocol.NewHandshakeError("GetVersion", fmt.Errorf("unexpected response %s", resp))
	}
	s.logger.Info("Firmware version", zap.String("version", fw.Version()))

	resp, err = s.exchange(ctx, protocol.NewCommand(protocol.CmdNewPairing))
	if err != nil {
		return "", asHandshake("NewPairing", err)
	}
	if _, ok := resp.(*protocol.PairOK); !ok {
		return "", protocol.NewHandshakeError("NewPairing", fmt.Errorf("unexpected response %s", resp))
	}

	return fw.Version(), nil
}

func (s *Session) dataInfo(ctx context.Context) (protocol.DataInfo, error) {
	if err := s.send(ctx, protocol.NewCommand(protocol.CmdGetDataInfo)); err != nil {
		return protocol.DataInfo{}, err
	}
	f, err := s.recv(ctx, "GetDataInfo")
	if err != nil {
		return protocol.DataInfo{}, asHandshake("GetDataInfo", err)
	}
	info, err := protocol.DecodeDataInfo(f[:])
	if err != nil {
		return protocol.DataInfo{}, asHandshake("GetDataInfo", err)
	}
	if err := info.Validate(); err != nil {
		return protocol.DataInfo{}, err
	}

	s.logger.Info("Data range", zap.Stringer("info", info))
	return info, nil
}

// download requests blocks 0..DataEnd in order and concatenates their
// payloads
func (s *Session) download(ctx context.Context, info protocol.DataInfo) ([]byte, error) {
	blocks := info.Blocks()
	image := make([]byte, 0, info.ImageSize())
	total := blocks * protocol.PacketsInBlock

	var buf protocol.BlockBuffer
	for i := 0; i < blocks; i++ {
		if err := s.send(ctx, protocol.GetData(uint16(i), s.config.FileID)); err != nil {
			return nil, asBlock(i, err)
		}

		buf.Reset()
		for !buf.Complete() {
			f, err := s.recv(ctx, "GetData")
			if err != nil {
				return nil, asBlock(i, err)
			}
			if err := buf.Append(f); err != nil {
				return nil, protocol.NewBlockTransferError(i, err)
			}
		}

		payload, err := buf.Reassemble()
		if err != nil {
			return nil, protocol.NewBlockTransferError(i, err)
		}
		image = append(image, payload...)

		s.logger.Debug("Block received", zap.Int("block", i), zap.Int("blocks", blocks))
		err = s.emitProgress(ctx, Progress{
			Block:        i,
			Blocks:       blocks,
			Packets:      i*protocol.PacketsInBlock + buf.Received(),
			TotalPackets: total,
			Bytes:        len(image),
		})
		if err != nil {
			return nil, err
		}
	}

	return image, nil
}

func (s *Session) finish(ctx context.Context, info protocol.DataInfo) error {
	resp, err := s.exchange(ctx, protocol.GetDataFinish(info.DataStart, s.config.FileID))
	if err != nil {
		return asHandshake("GetDataFinish", err)
	}
	if _, ok := resp.(*protocol.DataFinishOK); !ok {
		return protocol.NewHandshakeError("GetDataFinish", fmt.Errorf("unexpected response %s", resp))
	}
	return nil
}

// exchange sends one command and decodes the single frame it answers with
func (s *Session) exchange(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if err := s.send(ctx, cmd); err != nil {
		return nil, err
	}
	f, err := s.recv(ctx, cmd.Kind.String())
	if err != nil {
		return nil, err
	}
	return protocol.Decode(f[:])
}

func (s *Session) send(ctx context.Context, cmd protocol.Command) error {
	f, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}

	s.seq++
	logging.LogFrame(s.logger, "tx", s.seq, f[:])

	if err := s.transport.Send(ctx, f); err != nil {
		return &TransportError{Op: "send " + cmd.Kind.String(), Err: err}
	}
	return nil
}

// recv waits for the next inbound frame, bounded by the receive timeout
// when one is configured. Frames the transport could not shape into 20
// bytes come back as *protocol.FrameError, everything else as
// *TransportError.
func (s *Session) recv(ctx context.Context, op string) (protocol.Frame, error) {
	rctx := ctx
	if s.config.ReceiveTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.config.ReceiveTimeout)
		defer cancel()
	}

	f, err := s.transport.Recv(rctx)
	if err != nil {
		var fe *protocol.FrameError
		if errors.As(err, &fe) {
			return protocol.Frame{}, err
		}
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no frame within %s: %w", s.config.ReceiveTimeout, err)
		}
		return protocol.Frame{}, &TransportError{Op: "recv " + op, Err: err}
	}

	s.seq++
	logging.LogFrame(s.logger, "rx", s.seq, f[:])
	return f, nil
}

// emitState publishes a transition. The send blocks until the observer has
// room or ctx ends.
func (s *Session) emitState(ctx context.Context, st State) error {
	if st != s.state || st == Pairing {
		logging.LogStateChange(s.logger, s.state.String(), st.String())
	}
	s.state = st

	ev := Event{Kind: EventStateChanged, State: st, Time: time.Now()}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitProgress publishes a completed block. Like state changes it waits for
// the observer or ctx.
func (s *Session) emitProgress(ctx context.Context, p Progress) error {
	select {
	case s.events <- Event{Kind: EventProgress, Progress: p, Time: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// disconnected publishes the terminal state after link loss. A cancelled
// ctx still gets the event if the channel has room.
func (s *Session) disconnected(ctx context.Context) {
	if err := s.emitState(ctx, Disconnected); err != nil {
		select {
		case s.events <- Event{Kind: EventStateChanged, State: Disconnected, Time: time.Now()}:
		default:
		}
	}
}

// asBlock keeps transport errors as they are and attributes the rest to
// block i
func asBlock(i int, err error) error {
	if isTransport(err) {
		return err
	}
	return protocol.NewBlockTransferError(i, err)
}
