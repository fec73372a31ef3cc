package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// branch with errors.Is while still getting offsets and CRC values from
// errors.As.
var (
	// Frame and block framing
	ErrBadLength          = errors.New("bad length")
	ErrBadTag             = errors.New("bad tag")
	ErrCRCMismatch        = errors.New("crc mismatch")
	ErrUnrecognizedOpcode = errors.New("unrecognized opcode")
	ErrMisroutedOpcode    = errors.New("misrouted opcode")
	ErrBadOpcode          = errors.New("bad block opcode")
	ErrPayloadTooLarge    = errors.New("payload too large")

	// Session level
	ErrUnsupportedCommand   = errors.New("unsupported command")
	ErrHandshakeFailed      = errors.New("handshake failed")
	ErrUnsupportedDataRange = errors.New("unsupported data range")
	ErrBlockTransferFailed  = errors.New("block transfer failed")
)

// FrameError describes why a 20-byte frame was rejected
type FrameError struct {
	Err      error  // One of the frame sentinels
	Length   int    // Received length (ErrBadLength)
	Tag      byte   // Received tag byte (ErrBadTag)
	Opcode   byte   // Opcode byte (ErrUnrecognizedOpcode, ErrMisroutedOpcode)
	Expected uint16 // CRC computed over the frame body (ErrCRCMismatch)
	Actual   uint16 // CRC carried in the frame trailer (ErrCRCMismatch)
}

func (e *FrameError) Error() string {
	switch e.Err {
	case ErrBadLength:
		return fmt.Sprintf("frame: %v: got %d bytes, want %d", e.Err, e.Length, FrameSize)
	case ErrBadTag:
		return fmt.Sprintf("frame: %v: 0x%02x (expected 0x%02x)", e.Err, e.Tag, Tag)
	case ErrCRCMismatch:
		return fmt.Sprintf("frame: %v: expected 0x%04x, got 0x%04x", e.Err, e.Expected, e.Actual)
	case ErrUnrecognizedOpcode, ErrMisroutedOpcode:
		return fmt.Sprintf("frame: %v: %s", e.Err, OpcodeName(e.Opcode))
	default:
		return fmt.Sprintf("frame: %v", e.Err)
	}
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// BlockError describes why a reassembled block was rejected
type BlockError struct {
	Err      error
	Length   int
	Tag      byte
	Opcode   byte
	Expected uint16
	Actual   uint16
}

func (e *BlockError) Error() string {
	switch e.Err {
	case ErrBadLength:
		return fmt.Sprintf("block: %v: got %d bytes, want %d", e.Err, e.Length, BlockFrameSize)
	case ErrBadTag:
		return fmt.Sprintf("block: %v: 0x%02x (expected 0x%02x)", e.Err, e.Tag, Tag)
	case ErrBadOpcode:
		return fmt.Sprintf("block: %v: 0x%02x (expected 0x%02x)", e.Err, e.Opcode, OpDataBlock)
	case ErrCRCMismatch:
		return fmt.Sprintf("block: %v: expected 0x%04x, got 0x%04x", e.Err, e.Expected, e.Actual)
	default:
		return fmt.Sprintf("block: %v", e.Err)
	}
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// ErrorKind is the category of a session-level protocol failure
type ErrorKind int

const (
	// KindUnsupportedCommand indicates a command without a wire encoding
	KindUnsupportedCommand ErrorKind = iota
	// KindHandshakeFailed indicates the version/pairing exchange went wrong
	KindHandshakeFailed
	// KindUnsupportedDataRange indicates the device reported a layout we cannot download
	KindUnsupportedDataRange
	// KindBlockTransferFailed indicates a block could not be received or reassembled
	KindBlockTransferFailed
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedCommand:
		return "UnsupportedCommand"
	case KindHandshakeFailed:
		return "HandshakeFailed"
	case KindUnsupportedDataRange:
		return "UnsupportedDataRange"
	case KindBlockTransferFailed:
		return "BlockTransferFailed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnsupportedCommand:
		return ErrUnsupportedCommand
	case KindHandshakeFailed:
		return ErrHandshakeFailed
	case KindUnsupportedDataRange:
		return ErrUnsupportedDataRange
	case KindBlockTransferFailed:
		return ErrBlockTransferFailed
	default:
		return nil
	}
}

// ProtocolError is a fatal session failure. Err holds the underlying cause
// (a FrameError, BlockError or transport error) when there is one.
type ProtocolError struct {
	Kind  ErrorKind
	Step  string // Command or phase being executed
	Block int    // Block index, only meaningful for KindBlockTransferFailed
	Err   error
}

func (e *ProtocolError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Kind == KindBlockTransferFailed {
		msg = fmt.Sprintf("%s: block %d", msg, e.Block)
	} else if e.Step != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Step)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *ProtocolError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// NewHandshakeError wraps a failure during the version/pairing exchange
func NewHandshakeError(step string, err error) *ProtocolError {
	return &ProtocolError{Kind: KindHandshakeFailed, Step: step, Err: err}
}

// NewBlockTransferError wraps a failure while receiving block index
func NewBlockTransferError(block int, err error) *ProtocolError {
	return &ProtocolError{Kind: KindBlockTransferFailed, Step: "GetData", Block: block, Err: err}
}
