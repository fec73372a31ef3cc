package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Response opcodes (byte 1 of an incoming frame)
const (
	OpFirmwareVersion = 2  // Firmware/info text follows
	OpDataInfo        = 5  // Flash layout, decoded by DecodeDataInfo only
	OpDataBlock       = 6  // First frame of a data block, reassembly only
	OpDataFinishOK    = 7  // Transfer acknowledged
	OpPairOK          = 73 // 0x49, pairing accepted
)

// Response is a decoded single-frame reply from the tracker
type Response interface {
	Opcode() byte
	String() string
}

// PairOK (opcode 73) - the tracker accepted NewPairing
type PairOK struct{}

func (*PairOK) Opcode() byte { return OpPairOK }

func (*PairOK) String() string { return "PairOk" }

// FirmwareVersion (opcode 2) - reply to GetVersion
type FirmwareVersion struct {
	Info [16]byte // frame bytes 2..17, version/info text padded with 0xff or 0x00
}

func (*FirmwareVersion) Opcode() byte { return OpFirmwareVersion }

// Version returns the printable part of Info
func (m *FirmwareVersion) Version() string {
	info := m.Info[:]
	if i := bytes.IndexAny(info, "\x00\xff"); i >= 0 {
		info = info[:i]
	}
	return string(bytes.TrimSpace(info))
}

func (m *FirmwareVersion) String() string {
	return fmt.Sprintf("FwVersion{%q}", m.Version())
}

// DataFinishOK (opcode 7) - reply to GetDataFinish
type DataFinishOK struct{}

func (*DataFinishOK) Opcode() byte { return OpDataFinishOK }

func (*DataFinishOK) String() string { return "DataFinishOk" }

// Decode validates a frame and decodes it into a Response
//
// DataInfo (5) and DataBlockHeader (6) frames have dedicated decode paths
// (DecodeDataInfo, Reassemble) and fail here with ErrMisroutedOpcode.
func Decode(b []byte) (Response, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}

	op := b[1]
	switch op {
	case OpPairOK:
		return &PairOK{}, nil
	case OpFirmwareVersion:
		msg := &FirmwareVersion{}
		copy(msg.Info[:], b[2:bodyEnd])
		return msg, nil
	case OpDataFinishOK:
		return &DataFinishOK{}, nil
	case OpDataInfo, OpDataBlock:
		return nil, &FrameError{Err: ErrMisroutedOpcode, Length: len(b), Tag: b[0], Opcode: op}
	default:
		return nil, &FrameError{Err: ErrUnrecognizedOpcode, Length: len(b), Tag: b[0], Opcode: op}
	}
}

// DataInfo is the flash layout reported in reply to GetDataInfo
type DataInfo struct {
	DataStart uint16 // First block holding data, must be 0
	DataEnd   uint16 // One past the last block holding data
	FlashSize uint16 // Total flash size in blocks
}

// DecodeDataInfo validates an opcode-5 frame and parses its three
// big-endian fields from bytes 2..7
func DecodeDataInfo(b []byte) (DataInfo, error) {
	if err := Validate(b); err != nil {
		return DataInfo{}, err
	}
	if b[1] != OpDataInfo {
		return DataInfo{}, &FrameError{Err: ErrMisroutedOpcode, Length: len(b), Tag: b[0], Opcode: b[1]}
	}

	return DataInfo{
		DataStart: binary.BigEndian.Uint16(b[2:4]),
		DataEnd:   binary.BigEndian.Uint16(b[4:6]),
		FlashSize: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// Validate enforces DataStart == 0 and DataEnd <= FlashSize
func (d DataInfo) Validate() error {
	if d.DataStart != 0 || d.DataEnd > d.FlashSize {
		return &ProtocolError{
			Kind: KindUnsupportedDataRange,
			Step: "GetDataInfo",
			Err:  fmt.Errorf("start=%d end=%d flash=%d", d.DataStart, d.DataEnd, d.FlashSize),
		}
	}
	return nil
}

// Blocks returns the number of blocks to download
func (d DataInfo) Blocks() int {
	return int(d.DataEnd) - int(d.DataStart)
}

// ImageSize returns the size of the assembled flash image in bytes
func (d DataInfo) ImageSize() int {
	return d.Blocks() * BlockSize
}

func (d DataInfo) String() string {
	return fmt.Sprintf("DataInfo{start=%d, end=%d, flash=%d}", d.DataStart, d.DataEnd, d.FlashSize)
}

// EncodeDataInfo builds an opcode-5 frame. The tracker emulator in tests
// and the replay fixtures use it.
func EncodeDataInfo(d DataInfo) Frame {
	body := make([]byte, 7)
	body[0] = OpDataInfo
	binary.BigEndian.PutUint16(body[1:3], d.DataStart)
	binary.BigEndian.PutUint16(body[3:5], d.DataEnd)
	binary.BigEndian.PutUint16(body[5:7], d.FlashSize)
	f, _ := Pack(body)
	return f
}

// EncodeFirmwareVersion builds an opcode-2 frame carrying version text
func EncodeFirmwareVersion(version string) Frame {
	body := make([]byte, 1, MaxBodySize)
	body[0] = OpFirmwareVersion
	v := []byte(version)
	if len(v) > MaxBodySize-1 {
		v = v[:MaxBodySize-1]
	}
	f, _ := Pack(append(body, v...))
	return f
}

// EncodeReply builds a bare reply frame with only an opcode (PairOk,
// DataFinishOk)
func EncodeReply(op byte) Frame {
	f, _ := Pack([]byte{op})
	return f
}
