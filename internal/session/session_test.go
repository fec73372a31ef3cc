package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/banddump/internal/emulator"
	"github.com/muurk/banddump/internal/link"
	"github.com/muurk/banddump/internal/protocol"
)

// harness wires a session to an emulated tracker over a pipe
type harness struct {
	session *Session
	tracker *emulator.Tracker
	images  [][]byte
	events  chan []Event
	serve   chan error
}

func newHarness(t *testing.T, ctx context.Context, img []byte, trackerOpts []emulator.Option, opts ...Option) *harness {
	t.Helper()

	tr, err := emulator.New(img, trackerOpts...)
	require.NoError(t, err)

	host, peer := link.NewPipe(protocol.PacketsInBlock)
	h := &harness{
		tracker: tr,
		events:  make(chan []Event, 1),
		serve:   make(chan error, 1),
	}
	sink := SinkFunc(func(image []byte) error {
		h.images = append(h.images, append([]byte(nil), image...))
		return nil
	})
	h.session = New(host, sink, opts...)

	go func() { h.serve <- tr.Serve(ctx, peer) }()
	go func() {
		var got []Event
		for ev := range h.session.Events() {
			got = append(got, ev)
		}
		h.events <- got
	}()
	return h
}

func (h *harness) states() []State {
	var out []State
	for _, ev := range <-h.events {
		if ev.Kind == EventStateChanged {
			out = append(out, ev.State)
		}
	}
	return out
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRun_SingleBlock(t *testing.T) {
	ctx := testContext(t)
	img := emulator.PatternImage(1)
	h := newHarness(t, ctx, img, nil)

	res, err := h.session.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []State{Pairing, Connected, Ready, Receiving, Ready}, h.states())
	require.Len(t, h.images, 1)
	assert.Len(t, h.images[0], protocol.BlockSize)
	assert.Equal(t, img, h.images[0])

	assert.Equal(t, emulator.DefaultFirmware, res.Firmware)
	assert.Equal(t, protocol.DataInfo{DataStart: 0, DataEnd: 1, FlashSize: 1}, res.Info)
	assert.Equal(t, img, res.Image)
	require.NoError(t, <-h.serve)
}

func TestRun_MultipleBlocksInOrder(t *testing.T) {
	ctx := testContext(t)
	img := emulator.PatternImage(4)
	h := newHarness(t, ctx, img, nil)

	res, err := h.session.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, img, res.Image)

	// Handshake, range query, then one GetData per block in ascending order
	reqs := h.tracker.Requests()
	require.Len(t, reqs, 3+4)
	assert.Equal(t, byte(protocol.OpGetVersion), reqs[0].Opcode())
	assert.Equal(t, byte(protocol.OpNewPairing), reqs[1].Opcode())
	assert.Equal(t, byte(protocol.OpGetDataInfo), reqs[2].Opcode())
	for i := 0; i < 4; i++ {
		assert.Equal(t, protocol.MustEncode(protocol.GetData(uint16(i), DefaultFileID)), reqs[3+i])
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	const blocks = 8

	for run := 0; run < 10; run++ {
		ctx := testContext(t)
		h := newHarness(t, ctx, emulator.PatternImage(blocks), nil)

		_, err := h.session.Run(ctx)
		require.NoError(t, err)

		var progress []Progress
		var kinds []EventKind
		for _, ev := range <-h.events {
			kinds = append(kinds, ev.Kind)
			if ev.Kind == EventProgress {
				progress = append(progress, ev.Progress)
			}
		}

		// One event per block, all between Receiving and the final Ready
		require.Len(t, progress, blocks, "run %d", run)
		require.Len(t, kinds, 4+blocks+1)
		for _, k := range kinds[4 : 4+blocks] {
			assert.Equal(t, EventProgress, k)
		}

		for i, p := range progress {
			assert.Equal(t, i, p.Block)
			assert.Equal(t, blocks, p.Blocks)
			assert.Equal(t, (i+1)*protocol.PacketsInBlock, p.Packets)
			assert.Equal(t, blocks*protocol.PacketsInBlock, p.TotalPackets)
			assert.Equal(t, (i+1)*protocol.BlockSize, p.Bytes)

			want := float64(i*protocol.PacketsInBlock+protocol.PacketsInBlock) / float64(blocks*protocol.PacketsInBlock)
			assert.InDelta(t, want, p.Fraction(), 1e-9)
		}
		assert.Equal(t, 1.0, progress[blocks-1].Fraction())
	}
}

func TestRun_ProgressWaitsForObserver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr, err := emulator.New(emulator.PatternImage(4))
	require.NoError(t, err)
	host, peer := link.NewPipe(protocol.PacketsInBlock)
	go func() { _ = tr.Serve(ctx, peer) }()

	s := New(host, SinkFunc(func([]byte) error { return nil }))
	result := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx)
		result <- err
	}()

	// Read slowly; the session has to wait rather than skip progress
	var progress int
	for ev := range s.Events() {
		if ev.Kind == EventProgress {
			progress++
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, <-result)
	assert.Equal(t, 4, progress)
}

func TestRun_CorruptFrameAbortsBlock(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{
		emulator.WithCorruption(emulator.Corruption{Block: 0, Frame: 49, Offset: 5, Mask: 0x01}),
	})

	res, err := h.session.Run(ctx)
	require.Error(t, err)
	assert.Nil(t, res)

	assert.ErrorIs(t, err, protocol.ErrBlockTransferFailed)
	assert.ErrorIs(t, err, protocol.ErrCRCMismatch)
	var pe *protocol.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, pe.Block)

	assert.Empty(t, h.images)
	assert.Equal(t, []State{Pairing, Connected, Ready, Receiving}, h.states())
}

func TestRun_CorruptLaterBlock(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(3), []emulator.Option{
		emulator.WithCorruption(emulator.Corruption{Block: 2, Frame: 205, Offset: 1, Mask: 0x80}),
	})

	_, err := h.session.Run(ctx)
	var pe *protocol.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, protocol.KindBlockTransferFailed, pe.Kind)
	assert.Equal(t, 2, pe.Block)
	assert.Empty(t, h.images)
}

func TestRun_HandshakeFailures(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		resp protocol.Frame
		want error
	}{
		{
			name: "version answered with pair ok",
			op:   protocol.OpGetVersion,
			resp: protocol.EncodeReply(protocol.OpPairOK),
		},
		{
			name: "pairing answered with version",
			op:   protocol.OpNewPairing,
			resp: protocol.EncodeFirmwareVersion("V1"),
		},
		{
			name: "version answered with unknown opcode",
			op:   protocol.OpGetVersion,
			resp: protocol.EncodeReply(0x42),
			want: protocol.ErrUnrecognizedOpcode,
		},
		{
			name: "version answered with data info",
			op:   protocol.OpGetVersion,
			resp: protocol.EncodeDataInfo(protocol.DataInfo{DataEnd: 1, FlashSize: 1}),
			want: protocol.ErrMisroutedOpcode,
		},
		{
			name: "data info answered with pair ok",
			op:   protocol.OpGetDataInfo,
			resp: protocol.EncodeReply(protocol.OpPairOK),
			want: protocol.ErrMisroutedOpcode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			resp := tt.resp
			h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{
				emulator.WithResponder(tt.op, func(protocol.Frame) []protocol.Frame {
					return []protocol.Frame{resp}
				}),
			})

			_, err := h.session.Run(ctx)
			assert.ErrorIs(t, err, protocol.ErrHandshakeFailed)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Empty(t, h.images)
		})
	}
}

func TestRun_CorruptHandshakeFrame(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{
		emulator.WithResponder(protocol.OpGetVersion, func(protocol.Frame) []protocol.Frame {
			f := protocol.EncodeFirmwareVersion("V1")
			f[18] ^= 0x01
			return []protocol.Frame{f}
		}),
	})

	_, err := h.session.Run(ctx)
	assert.ErrorIs(t, err, protocol.ErrHandshakeFailed)
	assert.ErrorIs(t, err, protocol.ErrCRCMismatch)
	assert.Equal(t, []State{Pairing, Connected}, h.states())
}

func TestRun_UnsupportedDataRange(t *testing.T) {
	tests := []struct {
		name string
		info protocol.DataInfo
	}{
		{"end beyond flash", protocol.DataInfo{DataStart: 0, DataEnd: 25, FlashSize: 20}},
		{"nonzero start", protocol.DataInfo{DataStart: 1, DataEnd: 1, FlashSize: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{emulator.WithDataInfo(tt.info)})

			_, err := h.session.Run(ctx)
			assert.ErrorIs(t, err, protocol.ErrUnsupportedDataRange)
			assert.Empty(t, h.images)
			assert.Equal(t, []State{Pairing, Connected, Ready}, h.states())

			// No block was requested
			for _, req := range h.tracker.Requests() {
				assert.NotEqual(t, byte(protocol.OpGetData), req.Opcode())
			}
		})
	}
}

func TestRun_EmptyRange(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{
		emulator.WithDataInfo(protocol.DataInfo{DataStart: 0, DataEnd: 0, FlashSize: 4}),
	})

	res, err := h.session.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Image)
	require.Len(t, h.images, 1)
	assert.Empty(t, h.images[0])
	assert.Equal(t, []State{Pairing, Connected, Ready, Receiving, Ready}, h.states())
}

func TestRun_DisconnectMidBlock(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(2), []emulator.Option{
		// Handshake and range are 3 frames; drop part way into block 0
		emulator.WithDisconnectAfter(3 + 100),
	})

	_, err := h.session.Run(ctx)
	require.Error(t, err)
	assert.True(t, link.IsClosed(err))
	assert.NotErrorIs(t, err, protocol.ErrBlockTransferFailed)

	var te *TransportError
	require.True(t, errors.As(err, &te))

	states := h.states()
	require.NotEmpty(t, states)
	assert.Equal(t, Disconnected, states[len(states)-1])
	assert.Empty(t, h.images)
}

func TestRun_ReceiveTimeout(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{
		emulator.WithResponder(protocol.OpNewPairing, func(protocol.Frame) []protocol.Frame { return nil }),
	}, WithReceiveTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := h.session.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "recv NewPairing", te.Op)
}

func TestRun_FinishAck(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), nil, WithFinishAck(true), WithFileID(7))

	_, err := h.session.Run(ctx)
	require.NoError(t, err)

	reqs := h.tracker.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, protocol.MustEncode(protocol.GetData(0, 7)), reqs[3])
	assert.Equal(t, protocol.MustEncode(protocol.GetDataFinish(0, 7)), reqs[len(reqs)-1])
}

func TestRun_FinishAckWrongReply(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), []emulator.Option{
		emulator.WithResponder(protocol.OpGetDataFinish, func(protocol.Frame) []protocol.Frame {
			return []protocol.Frame{protocol.EncodeReply(protocol.OpPairOK)}
		}),
	}, WithFinishAck(true))

	_, err := h.session.Run(ctx)
	assert.ErrorIs(t, err, protocol.ErrHandshakeFailed)
	// The image was already persisted before the acknowledgement
	assert.Len(t, h.images, 1)
}

func TestRun_SinkError(t *testing.T) {
	ctx := testContext(t)
	tr, err := emulator.New(emulator.PatternImage(1))
	require.NoError(t, err)
	host, peer := link.NewPipe(protocol.PacketsInBlock)
	go func() { _ = tr.Serve(ctx, peer) }()

	diskFull := errors.New("disk full")
	s := New(host, SinkFunc(func([]byte) error { return diskFull }))
	go func() {
		for range s.Events() {
		}
	}()

	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, diskFull)
	var se *SinkError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, protocol.BlockSize, se.Size)
}

func TestRun_Once(t *testing.T) {
	ctx := testContext(t)
	h := newHarness(t, ctx, emulator.PatternImage(1), nil)

	_, err := h.session.Run(ctx)
	require.NoError(t, err)
	_, err = h.session.Run(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestRun_ConnectFailure(t *testing.T) {
	ctx := testContext(t)
	host, _ := link.NewPipe(1)
	require.NoError(t, host.Close())

	s := New(host, SinkFunc(func([]byte) error { return nil }))
	events := make(chan []Event, 1)
	go func() {
		var got []Event
		for ev := range s.Events() {
			got = append(got, ev)
		}
		events <- got
	}()

	_, err := s.Run(ctx)
	assert.True(t, link.IsClosed(err))

	got := <-events
	require.Len(t, got, 2)
	assert.Equal(t, Pairing, got[0].State)
	assert.Equal(t, Disconnected, got[1].State)
}

func TestRun_CancelledWhileObserverStalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr, err := emulator.New(emulator.PatternImage(1))
	require.NoError(t, err)
	host, peer := link.NewPipe(protocol.PacketsInBlock)
	go func() { _ = tr.Serve(ctx, peer) }()

	// Nobody reads events: the third state change blocks until cancel
	s := New(host, SinkFunc(func([]byte) error { return nil }))
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err = s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_LogsFrames(t *testing.T) {
	ctx := testContext(t)
	core, logs := observer.New(zap.DebugLevel)
	h := newHarness(t, ctx, emulator.PatternImage(1), nil, WithLogger(zap.New(core)))

	_, err := h.session.Run(ctx)
	require.NoError(t, err)
	h.states()

	// 4 requests out, 3 handshake replies and 206 block frames in
	assert.Equal(t, 4+3+protocol.PacketsInBlock, logs.FilterMessage("Frame").Len())
	assert.Equal(t, 5, logs.FilterMessage("State change").Len())
}

func TestNew_Defaults(t *testing.T) {
	host, _ := link.NewPipe(1)
	s := New(host, SinkFunc(func([]byte) error { return nil }))

	cfg := s.Config()
	assert.Equal(t, uint16(DefaultFileID), cfg.FileID)
	assert.Zero(t, cfg.ReceiveTimeout)
	assert.False(t, cfg.FinishAck)
	assert.Equal(t, EventBuffer, cap(s.events))
}

func TestProgress_Fraction(t *testing.T) {
	p := Progress{Block: 0, Blocks: 2, Packets: 206, TotalPackets: 412}
	assert.InDelta(t, 0.5, p.Fraction(), 1e-9)
	assert.Equal(t, 1.0, Progress{}.Fraction())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Pairing", Pairing.String())
	assert.Equal(t, "Disconnected", Disconnected.String())
	assert.Equal(t, "State(9)", State(9).String())
}
