// Package protocol implements the wire protocol of the tracker.
//
// This package handles construction, validation and decoding of the fixed
// 20-byte frames exchanged with the tracker over its wireless link, and the
// reassembly of multi-frame data blocks used by the flash download.
//
// # Frame Format
//
// Every frame is exactly 20 bytes:
//   - Tag: 0x7e
//   - Opcode: 1 byte
//   - Payload: 16 bytes, padded with 0xff
//   - CRC16: 2 bytes, big-endian, over bytes 1..17
//
// The CRC is CRC-16/XMODEM (polynomial 0x1021, initial value 0, no final
// XOR), see CRC16.
//
// # Commands
//
// Command values name one of the firmware's commands. Only some have a
// known encoding (Reset, GetBattery, GetTime, GetVersion, GetHistory,
// NewPairing, GetData, GetDataInfo, GetDataFinish); encoding any other
// command fails with ErrUnsupportedCommand.
//
//	frame, err := protocol.Encode(protocol.GetData(3, 1))
//	if err != nil {
//	    return err
//	}
//
// # Responses
//
// Decode validates a frame and returns one of *PairOK, *FirmwareVersion or
// *DataFinishOK. DataInfo frames (opcode 5) are only valid through
// DecodeDataInfo and block headers (opcode 6) only through Reassemble;
// Decode rejects both with ErrMisroutedOpcode.
//
// # Blocks
//
// A flash download moves data in blocks of 206 frames (4120 bytes) carrying
// 4096 bytes of payload protected by an outer CRC16 at offset 4100.
// BlockBuffer collects frames in arrival order and Reassemble checks the
// block and returns its payload.
//
// # Error Handling
//
// The package distinguishes between:
//   - Frame errors (*FrameError): length, tag, CRC, opcode routing
//   - Block errors (*BlockError): length, tag, opcode, outer CRC
//   - Session errors (*ProtocolError): unsupported commands, handshake,
//     data range and block transfer failures
//
// All of them unwrap to package sentinels usable with errors.Is.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use. BlockBuffer is
// not safe for concurrent use.
package protocol
