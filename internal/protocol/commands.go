package protocol

import (
	"fmt"
	"strings"
)

// CommandKind identifies one of the commands the tracker firmware knows about
type CommandKind int

// The full command set of the firmware. Only some of these have a known wire
// encoding; see Command.Body.
const (
	CmdReset CommandKind = iota
	CmdSendTime
	CmdGetBattery
	CmdGetTime
	CmdGetVersion
	CmdTest
	CmdGetAddress
	CmdModeFunc
	CmdModeFuncState
	CmdPhoneSwitch
	CmdGetCalInfo
	CmdGetHistory
	CmdClearHistory
	CmdGetSedentaryTime
	CmdSetAlarm
	CmdSetUserInfo
	CmdSetRightHand
	CmdForceSleep
	CmdNewPairing
	CmdGetData
	CmdGetDataInfo
	CmdGetDataFinish
)

// Command opcodes (byte 1 of an outgoing frame)
const (
	OpGetTime       = 17 // 0x11
	OpGetVersion    = 18 // 0x12
	OpReset         = 19 // 0x13
	OpGetBattery    = 20 // 0x14
	OpGetDataInfo   = 21 // 0x15
	OpGetData       = 22 // 0x16
	OpGetDataFinish = 23 // 0x17
	OpGetHistory    = 35 // 0x23
	OpNewPairing    = 65 // 0x41
)

var commandNames = map[CommandKind]string{
	CmdReset:            "Reset",
	CmdSendTime:         "SendTime",
	CmdGetBattery:       "GetBattery",
	CmdGetTime:          "GetTime",
	CmdGetVersion:       "GetVersion",
	CmdTest:             "Test",
	CmdGetAddress:       "GetAddress",
	CmdModeFunc:         "ModeFunc",
	CmdModeFuncState:    "ModeFuncState",
	CmdPhoneSwitch:      "PhoneSwitch",
	CmdGetCalInfo:       "GetCalInfo",
	CmdGetHistory:       "GetHistory",
	CmdClearHistory:     "ClearHistory",
	CmdGetSedentaryTime: "GetSedentaryTime",
	CmdSetAlarm:         "SetAlarm",
	CmdSetUserInfo:      "SetUserInfo",
	CmdSetRightHand:     "SetRightHand",
	CmdForceSleep:       "ForceSleep",
	CmdNewPairing:       "NewPairing",
	CmdGetData:          "GetData",
	CmdGetDataInfo:      "GetDataInfo",
	CmdGetDataFinish:    "GetDataFinish",
}

// String returns the command name
func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// ParseCommandKind looks a command up by name (case-insensitive)
func ParseCommandKind(name string) (CommandKind, error) {
	for kind, n := range commandNames {
		if strings.EqualFold(n, name) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}

// Command is a request to the tracker. Start and File are only used by
// GetData and GetDataFinish.
type Command struct {
	Kind  CommandKind
	Start uint16 // First block to transfer
	File  uint16 // File selector, 1 for the activity log
}

// NewCommand returns an argument-less command of the given kind
func NewCommand(kind CommandKind) Command {
	return Command{Kind: kind}
}

// GetData returns a command requesting one block of flash
func GetData(start, file uint16) Command {
	return Command{Kind: CmdGetData, Start: start, File: file}
}

// GetDataFinish returns a command acknowledging the end of a transfer
func GetDataFinish(start, file uint16) Command {
	return Command{Kind: CmdGetDataFinish, Start: start, File: file}
}

// String returns a debug representation of the command
func (c Command) String() string {
	switch c.Kind {
	case CmdGetData, CmdGetDataFinish:
		return fmt.Sprintf("%s{start=%d, file=%d}", c.Kind, c.Start, c.File)
	default:
		return c.Kind.String()
	}
}

// Body returns the opcode and arguments written at offset 1 of the frame.
//
// Commands whose encoding is unknown fail with ErrUnsupportedCommand.
//
//	Reset          19 0
//	GetBattery     20
//	GetTime        17
//	GetVersion     18
//	GetHistory     35
//	NewPairing     65 160 161
//	GetData        22 start_hi start_lo file_hi file_lo
//	GetDataInfo    21
//	GetDataFinish  23 start_hi start_lo file_hi file_lo
func (c Command) Body() ([]byte, error) {
	switch c.Kind {
	case CmdReset:
		return []byte{OpReset, 0}, nil
	case CmdGetBattery:
		return []byte{OpGetBattery}, nil
	case CmdGetTime:
		return []byte{OpGetTime}, nil
	case CmdGetVersion:
		return []byte{OpGetVersion}, nil
	case CmdGetHistory:
		return []byte{OpGetHistory}, nil
	case CmdNewPairing:
		return []byte{OpNewPairing, 160, 161}, nil
	case CmdGetDataInfo:
		return []byte{OpGetDataInfo}, nil
	case CmdGetData:
		return rangeBody(OpGetData, c.Start, c.File), nil
	case CmdGetDataFinish:
		return rangeBody(OpGetDataFinish, c.Start, c.File), nil
	default:
		return nil, &ProtocolError{Kind: KindUnsupportedCommand, Step: c.Kind.String()}
	}
}

func rangeBody(op byte, start, file uint16) []byte {
	return []byte{op, byte(start >> 8), byte(start), byte(file >> 8), byte(file)}
}

// Supported reports whether the command has a wire encoding
func (c Command) Supported() bool {
	_, err := c.Body()
	return err == nil
}

// CommandOpcodeName names the opcode of an outgoing frame
func CommandOpcodeName(op byte) string {
	switch op {
	case OpGetTime:
		return CmdGetTime.String()
	case OpGetVersion:
		return CmdGetVersion.String()
	case OpReset:
		return CmdReset.String()
	case OpGetBattery:
		return CmdGetBattery.String()
	case OpGetDataInfo:
		return CmdGetDataInfo.String()
	case OpGetData:
		return CmdGetData.String()
	case OpGetDataFinish:
		return CmdGetDataFinish.String()
	case OpGetHistory:
		return CmdGetHistory.String()
	case OpNewPairing:
		return CmdNewPairing.String()
	default:
		return fmt.Sprintf("Unknown(0x%02x)", op)
	}
}

// Encode packs a command into a frame
func Encode(c Command) (Frame, error) {
	body, err := c.Body()
	if err != nil {
		return Frame{}, err
	}
	return Pack(body)
}

// MustEncode is like Encode but panics on unsupported commands.
// Only for package-level fixtures and tests.
func MustEncode(c Command) Frame {
	f, err := Encode(c)
	if err != nil {
		panic(err)
	}
	return f
}
