package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Frame layout constants
const (
	FrameSize = 20   // Every frame on the link is exactly 20 bytes
	Tag       = 0x7e // Byte 0 of every frame and every block
	Fill      = 0xff // Padding for unused body bytes

	bodyStart = 1
	bodyEnd   = FrameSize - 2 // CRC covers frame[bodyStart:bodyEnd]

	// MaxBodySize is the opcode plus payload room in one frame
	MaxBodySize = bodyEnd - bodyStart
)

// Frame is one 20-byte wire unit
//
//	[0]      0x7e        Tag
//	[1]      opcode      Command or response opcode
//	[2-17]   payload     Arguments, 0xff padded
//	[18-19]  crc         CRC16 of bytes 1..17, big-endian
type Frame [FrameSize]byte

// Pack builds a frame from an opcode+payload body of at most 17 bytes
func Pack(body []byte) (Frame, error) {
	var f Frame
	if len(body) > MaxBodySize {
		return f, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(body), MaxBodySize)
	}

	for i := range f {
		f[i] = Fill
	}
	f[0] = Tag
	copy(f[bodyStart:], body)
	f.seal()

	return f, nil
}

// seal writes the CRC trailer
func (f *Frame) seal() {
	binary.BigEndian.PutUint16(f[bodyEnd:], CRC16(f[bodyStart:bodyEnd]))
}

// FrameFromBytes copies b into a Frame after checking its length
func FrameFromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameSize {
		return f, &FrameError{Err: ErrBadLength, Length: len(b)}
	}
	copy(f[:], b)
	return f, nil
}

// Validate checks length, tag and CRC of a raw frame
//
// Checks run in that order, so a frame with a broken trailer and a good tag
// always reports ErrCRCMismatch.
func Validate(b []byte) error {
	if len(b) != FrameSize {
		return &FrameError{Err: ErrBadLength, Length: len(b)}
	}
	if b[0] != Tag {
		return &FrameError{Err: ErrBadTag, Length: len(b), Tag: b[0]}
	}

	expected := CRC16(b[bodyStart:bodyEnd])
	actual := binary.BigEndian.Uint16(b[bodyEnd:])
	if expected != actual {
		return &FrameError{Err: ErrCRCMismatch, Length: len(b), Tag: b[0], Opcode: b[1], Expected: expected, Actual: actual}
	}

	return nil
}

// Opcode returns byte 1 of the frame
func (f Frame) Opcode() byte {
	return f[1]
}

// Payload returns bytes 2..17 (16 bytes)
func (f Frame) Payload() []byte {
	return f[2:bodyEnd]
}

// CRC returns the CRC carried in the trailer
func (f Frame) CRC() uint16 {
	return binary.BigEndian.Uint16(f[bodyEnd:])
}

// Hex returns the frame as a lowercase hex string
func (f Frame) Hex() string {
	return hex.EncodeToString(f[:])
}

// String returns a debug representation of the frame
func (f Frame) String() string {
	return fmt.Sprintf("Frame{op=%s, crc=0x%04x}", OpcodeName(f.Opcode()), f.CRC())
}

// ParseHex decodes a hex string (spaces allowed) into a frame
func ParseHex(s string) (Frame, error) {
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', ':', '\t', '\n':
			continue
		}
		clean = append(clean, s[i])
	}

	raw, err := hex.DecodeString(string(clean))
	if err != nil {
		return Frame{}, fmt.Errorf("invalid hex: %w", err)
	}
	return FrameFromBytes(raw)
}

// BlockBodyName labels frames 2..PacketsInBlock of a data block. Their
// byte 1 is payload, not an opcode.
const BlockBodyName = "DataBlockBody"

// OpcodeName returns a human-readable name for a response opcode
func OpcodeName(op byte) string {
	switch op {
	case OpPairOK:
		return "PairOk"
	case OpFirmwareVersion:
		return "FwVersion"
	case OpDataInfo:
		return "DataInfo"
	case OpDataBlock:
		return "DataBlockHeader"
	case OpDataFinishOK:
		return "DataFinishOk"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", op)
	}
}
