package protocol

import (
	"encoding/binary"
	"fmt"
)

// Block layout constants
//
// A block is PacketsInBlock frames concatenated in arrival order:
//
//	[0]          0x7e      Tag
//	[1]          0x06      OpDataBlock
//	[2-3]        header    Reserved
//	[4-4099]     payload   4096 bytes of flash
//	[4100-4101]  crc       CRC16 of bytes 1..4099, big-endian
//	[4102-4119]  padding   Rest of the last frame, ignored
const (
	PacketsInBlock = 206
	BlockFrameSize = PacketsInBlock * FrameSize // 4120
	BlockSize      = 4096
	BlockHeaderEnd = 4
	CRCIndex       = (PacketsInBlock - 1) * FrameSize // 4100
)

// Reassemble validates a concatenated block and returns its 4096-byte
// payload. The returned slice is a copy.
//
// Frame order inside the block is not checked: frames carry no sequence
// number, so a transport that reorders frames surfaces as ErrCRCMismatch.
func Reassemble(block []byte) ([]byte, error) {
	if len(block) != BlockFrameSize {
		return nil, &BlockError{Err: ErrBadLength, Length: len(block)}
	}
	if block[0] != Tag {
		return nil, &BlockError{Err: ErrBadTag, Length: len(block), Tag: block[0]}
	}
	if block[1] != OpDataBlock {
		return nil, &BlockError{Err: ErrBadOpcode, Length: len(block), Tag: block[0], Opcode: block[1]}
	}

	expected := CRC16(block[1:CRCIndex])
	actual := binary.BigEndian.Uint16(block[CRCIndex:])
	if expected != actual {
		return nil, &BlockError{
			Err:      ErrCRCMismatch,
			Length:   len(block),
			Tag:      block[0],
			Opcode:   block[1],
			Expected: expected,
			Actual:   actual,
		}
	}

	payload := make([]byte, BlockSize)
	copy(payload, block[BlockHeaderEnd:CRCIndex])
	return payload, nil
}

// BlockBuffer collects the frames of one block in arrival order
type BlockBuffer struct {
	buf      [BlockFrameSize]byte
	received int
}

// Append adds the next frame. It fails once PacketsInBlock frames are held.
func (b *BlockBuffer) Append(f Frame) error {
	if b.received >= PacketsInBlock {
		return fmt.Errorf("block buffer full: %d frames", b.received)
	}
	copy(b.buf[b.received*FrameSize:], f[:])
	b.received++
	return nil
}

// Received returns the number of frames appended since the last Reset
func (b *BlockBuffer) Received() int {
	return b.received
}

// Complete reports whether all frames of the block have arrived
func (b *BlockBuffer) Complete() bool {
	return b.received == PacketsInBlock
}

// Bytes returns the frames received so far, concatenated
func (b *BlockBuffer) Bytes() []byte {
	return b.buf[:b.received*FrameSize]
}

// Reassemble validates the buffered block and returns its payload
func (b *BlockBuffer) Reassemble() ([]byte, error) {
	return Reassemble(b.Bytes())
}

// Reset empties the buffer for the next block
func (b *BlockBuffer) Reset() {
	b.received = 0
}

// BuildBlock lays out payload (exactly BlockSize bytes) as a block with
// header and CRC and splits it into PacketsInBlock frames. header fills the
// two reserved bytes.
func BuildBlock(payload []byte, header uint16) ([]Frame, error) {
	if len(payload) != BlockSize {
		return nil, fmt.Errorf("%w: block payload is %d bytes, want %d", ErrBadLength, len(payload), BlockSize)
	}

	raw := make([]byte, BlockFrameSize)
	for i := range raw {
		raw[i] = Fill
	}
	raw[0] = Tag
	raw[1] = OpDataBlock
	binary.BigEndian.PutUint16(raw[2:BlockHeaderEnd], header)
	copy(raw[BlockHeaderEnd:], payload)
	binary.BigEndian.PutUint16(raw[CRCIndex:], CRC16(raw[1:CRCIndex]))

	frames := make([]Frame, PacketsInBlock)
	for i := range frames {
		copy(frames[i][:], raw[i*FrameSize:])
	}
	return frames, nil
}
