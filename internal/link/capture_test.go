package link

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/banddump/internal/protocol"
)

func TestRecorder_WritesBothDirections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	host, peer := NewPipe(4)

	var out bytes.Buffer
	rec := NewRecorder(host, &out)
	rec.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, rec.Connect(ctx))

	cmd := protocol.MustEncode(protocol.NewCommand(protocol.CmdGetVersion))
	require.NoError(t, rec.Send(ctx, cmd))
	_, err := peer.Recv(ctx)
	require.NoError(t, err)

	reply := protocol.EncodeFirmwareVersion("V2.0")
	require.NoError(t, peer.Send(ctx, reply))
	got, err := rec.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, reply, got)

	require.NoError(t, rec.Err())
	assert.Equal(t, 2, rec.Frames())

	records, err := ReadCapture(&out)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, DirectionTx, records[0].Direction)
	assert.Equal(t, 0, records[0].Seq)
	assert.Equal(t, byte(protocol.OpGetVersion), records[0].Opcode)
	assert.Equal(t, cmd.Hex(), records[0].Hex)
	assert.Equal(t, "2026-01-02T03:04:05Z", records[0].Timestamp)

	assert.Equal(t, "GetVersion", records[0].OpName)

	assert.Equal(t, DirectionRx, records[1].Direction)
	assert.Equal(t, "FwVersion", records[1].OpName)

	f, err := records[1].Frame()
	require.NoError(t, err)
	assert.Equal(t, reply, f)
}

func TestRecorder_NamesBlockFrames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	host, peer := NewPipe(protocol.PacketsInBlock + 1)

	var out bytes.Buffer
	rec := NewRecorder(host, &out)
	require.NoError(t, rec.Connect(ctx))

	payload := make([]byte, protocol.BlockSize)
	for i := range payload {
		payload[i] = byte(protocol.OpPairOK) // looks like an opcode at every offset
	}
	frames, err := protocol.BuildBlock(payload, 0)
	require.NoError(t, err)

	require.NoError(t, rec.Send(ctx, protocol.MustEncode(protocol.GetData(0, 1))))
	for _, f := range frames {
		require.NoError(t, peer.Send(ctx, f))
	}
	require.NoError(t, peer.Send(ctx, protocol.EncodeReply(protocol.OpDataFinishOK)))
	for i := 0; i < len(frames)+1; i++ {
		_, err := rec.Recv(ctx)
		require.NoError(t, err)
	}

	records, err := ReadCapture(&out)
	require.NoError(t, err)
	require.Len(t, records, 1+protocol.PacketsInBlock+1)

	assert.Equal(t, "GetData", records[0].OpName)
	assert.Equal(t, "DataBlockHeader", records[1].OpName)
	for _, r := range records[2 : 1+protocol.PacketsInBlock] {
		assert.Equal(t, protocol.BlockBodyName, r.OpName, "seq %d", r.Seq)
	}
	// The block is complete, so the next frame is named by its opcode again
	assert.Equal(t, "DataFinishOk", records[len(records)-1].OpName)
}

func TestReadCapture_BadLine(t *testing.T) {
	t.Parallel()

	_, err := ReadCapture(strings.NewReader("{\"seq\":0}\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReplay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reply := protocol.EncodeReply(protocol.OpPairOK)
	records := []CaptureRecord{
		{Seq: 0, Direction: DirectionTx, Hex: protocol.MustEncode(protocol.NewCommand(protocol.CmdNewPairing)).Hex()},
		{Seq: 1, Direction: DirectionRx, Hex: reply.Hex()},
	}

	r, err := NewReplay(records)
	require.NoError(t, err)
	require.NoError(t, r.Connect(ctx))
	assert.Equal(t, 1, r.Remaining())

	require.NoError(t, r.Send(ctx, protocol.Frame{}))
	assert.Equal(t, 1, r.Sent())

	got, err := r.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, reply, got)

	_, err = r.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewReplay_BadHex(t *testing.T) {
	t.Parallel()

	_, err := NewReplay([]CaptureRecord{{Direction: DirectionRx, Hex: "zz"}})
	assert.Error(t, err)

	_, err = NewReplay([]CaptureRecord{{Direction: DirectionRx, Hex: "7e49"}})
	assert.ErrorIs(t, err, protocol.ErrBadLength)
}
