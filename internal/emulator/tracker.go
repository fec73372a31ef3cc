package emulator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/protocol"
	"github.com/muurk/banddump/internal/syncutil"
)

// DefaultFirmware is reported by GetVersion unless WithFirmware is used
const DefaultFirmware = "V1.2.7"

// Pairing code carried by NewPairing
var pairingCode = [2]byte{160, 161}

// Port is the tracker end of a link. link.Peer and link.Serial satisfy it.
type Port interface {
	Send(ctx context.Context, f protocol.Frame) error
	Recv(ctx context.Context) (protocol.Frame, error)
	Close() error
}

// Responder produces the reply frames for one request. Returning nil sends
// nothing.
type Responder func(req protocol.Frame) []protocol.Frame

// Tracker answers host requests from an in-memory flash image the way the
// band firmware does: one frame per handshake command, 206 frames per
// GetData.
type Tracker struct {
	firmware  string
	image     []byte
	info      protocol.DataInfo
	overrides map[byte]Responder
	corrupt   []Corruption
	dropAfter int
	logger    *zap.Logger

	mu       syncutil.Mutex
	requests []protocol.Frame
}

// Corruption flips bits in one outgoing block frame
type Corruption struct {
	Block  int  // Block index as requested by GetData
	Frame  int  // Frame within the block, 0..205
	Offset int  // Byte within the frame
	Mask   byte // XOR mask
}

// Option configures a Tracker
type Option func(*Tracker)

// WithFirmware sets the version text returned by GetVersion
func WithFirmware(version string) Option {
	return func(t *Tracker) {
		t.firmware = version
	}
}

// WithDataInfo overrides the range reported by GetDataInfo. By default the
// range covers the whole image and the flash size equals the block count.
func WithDataInfo(info protocol.DataInfo) Option {
	return func(t *Tracker) {
		t.info = info
	}
}

// WithResponder replaces the handler for one request opcode
func WithResponder(op byte, r Responder) Option {
	return func(t *Tracker) {
		t.overrides[op] = r
	}
}

// WithCorruption damages a block frame on its way out
func WithCorruption(c Corruption) Option {
	return func(t *Tracker) {
		t.corrupt = append(t.corrupt, c)
	}
}

// WithDisconnectAfter closes the port once n frames have been sent
func WithDisconnectAfter(n int) Option {
	return func(t *Tracker) {
		t.dropAfter = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// New creates a tracker serving image. The image must be a whole number of
// blocks.
func New(image []byte, opts ...Option) (*Tracker, error) {
	if len(image)%protocol.BlockSize != 0 {
		return nil, fmt.Errorf("image is %d bytes, not a multiple of %d", len(image), protocol.BlockSize)
	}
	blocks := len(image) / protocol.BlockSize
	if blocks > 0xffff {
		return nil, fmt.Errorf("image has %d blocks, at most 65535 fit a GetData request", blocks)
	}

	t := &Tracker{
		firmware:  DefaultFirmware,
		image:     image,
		info:      protocol.DataInfo{DataStart: 0, DataEnd: uint16(blocks), FlashSize: uint16(blocks)},
		overrides: make(map[byte]Responder),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.GetLogger()
	}
	return t, nil
}

// PatternImage returns a deterministic image of n blocks where every byte
// depends on its block and offset
func PatternImage(blocks int) []byte {
	img := make([]byte, blocks*protocol.BlockSize)
	for i := range img {
		block := i / protocol.BlockSize
		img[i] = byte(i*7 + block*31 + (i >> 8))
	}
	return img
}

// Info returns the range the tracker reports
func (t *Tracker) Info() protocol.DataInfo {
	return t.info
}

// Firmware returns the version text reported by GetVersion
func (t *Tracker) Firmware() string {
	return t.firmware
}

// Image returns the served image
func (t *Tracker) Image() []byte {
	return t.image
}

// Requests returns every frame received so far, in order
func (t *Tracker) Requests() []protocol.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.Frame, len(t.requests))
	copy(out, t.requests)
	return out
}

// Serve answers requests on port until the host closes it or ctx ends.
// A closed port is a normal end and returns nil.
func (t *Tracker) Serve(ctx context.Context, port Port) error {
	sent := 0
	for {
		req, err := port.Recv(ctx)
		if err != nil {
			if link.IsClosed(err) {
				return nil
			}
			return fmt.Errorf("tracker recv: %w", err)
		}

		replies, err := t.Handle(req)
		if err != nil {
			t.logger.Warn("Ignoring request", zap.String("frame", req.Hex()), zap.Error(err))
			continue
		}

		for _, f := range replies {
			if t.dropAfter > 0 && sent >= t.dropAfter {
				t.logger.Info("Dropping link", zap.Int("frames_sent", sent))
				_ = port.Close()
				return nil
			}
			if err := port.Send(ctx, f); err != nil {
				if link.IsClosed(err) {
					return nil
				}
				return fmt.Errorf("tracker send: %w", err)
			}
			sent++
		}
	}
}

// Handle returns the frames the tracker sends in reply to req. Requests
// the firmware ignores yield no frames and no error.
func (t *Tracker) Handle(req protocol.Frame) ([]protocol.Frame, error) {
	if err := protocol.Validate(req[:]); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.mu.Unlock()

	op := req.Opcode()
	if r, ok := t.overrides[op]; ok {
		return r(req), nil
	}

	switch op {
	case protocol.OpGetVersion:
		return []protocol.Frame{protocol.EncodeFirmwareVersion(t.firmware)}, nil
	case protocol.OpNewPairing:
		p := req.Payload()
		if len(p) < 2 || p[0] != pairingCode[0] || p[1] != pairingCode[1] {
			return nil, errors.New("bad pairing code")
		}
		return []protocol.Frame{protocol.EncodeReply(protocol.OpPairOK)}, nil
	case protocol.OpGetDataInfo:
		return []protocol.Frame{protocol.EncodeDataInfo(t.info)}, nil
	case protocol.OpGetData:
		return t.block(req)
	case protocol.OpGetDataFinish:
		return []protocol.Frame{protocol.EncodeReply(protocol.OpDataFinishOK)}, nil
	default:
		t.logger.Debug("No reply for request", zap.String("opcode", protocol.CommandOpcodeName(op)))
		return nil, nil
	}
}

func (t *Tracker) block(req protocol.Frame) ([]protocol.Frame, error) {
	p := req.Payload()
	start := int(binary.BigEndian.Uint16(p[0:2]))
	if (start+1)*protocol.BlockSize > len(t.image) {
		return nil, fmt.Errorf("block %d outside image", start)
	}

	frames, err := protocol.BuildBlock(t.image[start*protocol.BlockSize:(start+1)*protocol.BlockSize], uint16(start))
	if err != nil {
		return nil, err
	}
	for _, c := range t.corrupt {
		if c.Block == start && c.Frame >= 0 && c.Frame < len(frames) && c.Offset >= 0 && c.Offset < protocol.FrameSize {
			frames[c.Frame][c.Offset] ^= c.Mask
		}
	}
	return frames, nil
}
