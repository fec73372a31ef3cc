package link

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/muurk/banddump/internal/protocol"
	"github.com/muurk/banddump/internal/syncutil"
)

// Capture directions
const (
	DirectionTx = "tx" // host to tracker
	DirectionRx = "rx" // tracker to host
)

// CaptureRecord is one line of a capture file
type CaptureRecord struct {
	Timestamp string `json:"timestamp"`
	Seq       int    `json:"seq"`
	Direction string `json:"direction"`
	Opcode    byte   `json:"opcode"`
	OpName    string `json:"op_name"`
	Hex       string `json:"hex"`
}

// Frame decodes the record's hex back into a frame
func (r CaptureRecord) Frame() (protocol.Frame, error) {
	raw, err := hex.DecodeString(r.Hex)
	if err != nil {
		return protocol.Frame{}, fmt.Errorf("capture record %d: invalid hex: %w", r.Seq, err)
	}
	return protocol.FrameFromBytes(raw)
}

// Recorder wraps a Transport and writes every frame it carries to w as
// JSON lines
type Recorder struct {
	Transport

	mu        syncutil.Mutex
	enc       *json.Encoder
	seq       int
	blockLeft int // inbound frames still owed for the last GetData
	err       error
	now       func() time.Time
}

// NewRecorder wraps t so that frames are also written to w
func NewRecorder(t Transport, w io.Writer) *Recorder {
	return &Recorder{
		Transport: t,
		enc:       json.NewEncoder(w),
		now:       time.Now,
	}
}

// Send implements Transport
func (r *Recorder) Send(ctx context.Context, f protocol.Frame) error {
	if err := r.Transport.Send(ctx, f); err != nil {
		return err
	}
	r.record(DirectionTx, f)
	return nil
}

// Recv implements Transport
func (r *Recorder) Recv(ctx context.Context) (protocol.Frame, error) {
	f, err := r.Transport.Recv(ctx)
	if err != nil {
		return f, err
	}
	r.record(DirectionRx, f)
	return f, nil
}

// Err returns the first error hit while writing the capture. Capture
// failures never interrupt the link.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Frames returns how many frames were recorded
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

func (r *Recorder) record(direction string, f protocol.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}

	rec := CaptureRecord{
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
		Seq:       r.seq,
		Direction: direction,
		Opcode:    f.Opcode(),
		OpName:    r.opName(direction, f),
		Hex:       f.Hex(),
	}
	r.seq++

	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("failed to write capture record: %w", err)
	}
}

// opName names f. Outbound frames carry command opcodes; inbound frames
// after a GetData form a block whose first frame alone has an opcode.
func (r *Recorder) opName(direction string, f protocol.Frame) string {
	if direction == DirectionTx {
		r.blockLeft = 0
		if f.Opcode() == protocol.OpGetData {
			r.blockLeft = protocol.PacketsInBlock
		}
		return protocol.CommandOpcodeName(f.Opcode())
	}

	if r.blockLeft == 0 {
		return protocol.OpcodeName(f.Opcode())
	}
	first := r.blockLeft == protocol.PacketsInBlock
	r.blockLeft--
	if first {
		return protocol.OpcodeName(f.Opcode())
	}
	return protocol.BlockBodyName
}

// ReadCapture parses a JSON-lines capture
func ReadCapture(rd io.Reader) ([]CaptureRecord, error) {
	var records []CaptureRecord

	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec CaptureRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("capture line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read capture: %w", err)
	}

	return records, nil
}

// Replay is a Transport that answers with the inbound frames of a capture,
// in order. Sent frames are counted but otherwise ignored. When the capture
// runs out the link reports ErrClosed.
type Replay struct {
	inbound []protocol.Frame
	next    int
	sent    int
	closed  bool
}

// NewReplay builds a Replay from capture records
func NewReplay(records []CaptureRecord) (*Replay, error) {
	r := &Replay{}
	for _, rec := range records {
		if rec.Direction != DirectionRx {
			continue
		}
		f, err := rec.Frame()
		if err != nil {
			return nil, err
		}
		r.inbound = append(r.inbound, f)
	}
	return r, nil
}

// Connect implements Transport
func (r *Replay) Connect(ctx context.Context) error {
	if r.closed {
		return fmt.Errorf("replay connect: %w", ErrClosed)
	}
	return ctx.Err()
}

// Send implements Transport
func (r *Replay) Send(ctx context.Context, _ protocol.Frame) error {
	if r.closed {
		return fmt.Errorf("replay send: %w", ErrClosed)
	}
	r.sent++
	return ctx.Err()
}

// Recv implements Transport
func (r *Replay) Recv(ctx context.Context) (protocol.Frame, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}
	if r.closed || r.next >= len(r.inbound) {
		return protocol.Frame{}, fmt.Errorf("replay recv after %d frames: %w", r.next, ErrClosed)
	}
	f := r.inbound[r.next]
	r.next++
	return f, nil
}

// Close implements Transport
func (r *Replay) Close() error {
	r.closed = true
	return nil
}

// Type implements Transport
func (*Replay) Type() Type {
	return TypeReplay
}

// Remaining returns the number of inbound frames not yet replayed
func (r *Replay) Remaining() int {
	return len(r.inbound) - r.next
}

// Sent returns the number of frames the host sent
func (r *Replay) Sent() int {
	return r.sent
}
