package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		body []byte
	}{
		{"reset", NewCommand(CmdReset), []byte{19, 0}},
		{"get battery", NewCommand(CmdGetBattery), []byte{20}},
		{"get time", NewCommand(CmdGetTime), []byte{17}},
		{"get version", NewCommand(CmdGetVersion), []byte{18}},
		{"get history", NewCommand(CmdGetHistory), []byte{35}},
		{"new pairing", NewCommand(CmdNewPairing), []byte{65, 160, 161}},
		{"get data info", NewCommand(CmdGetDataInfo), []byte{21}},
		{"get data", GetData(0x0102, 1), []byte{22, 0x01, 0x02, 0x00, 0x01}},
		{"get data finish", GetDataFinish(0, 0x0203), []byte{23, 0x00, 0x00, 0x02, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if f[0] != Tag {
				t.Errorf("tag = 0x%02x, want 0x%02x", f[0], Tag)
			}
			if !bytes.Equal(f[1:1+len(tt.body)], tt.body) {
				t.Errorf("body = % x, want % x", f[1:1+len(tt.body)], tt.body)
			}
			if err := Validate(f[:]); err != nil {
				t.Errorf("encoded frame fails validation: %v", err)
			}
		})
	}
}

func TestEncode_Unsupported(t *testing.T) {
	unsupported := []CommandKind{
		CmdSendTime, CmdTest, CmdGetAddress, CmdModeFunc, CmdModeFuncState,
		CmdPhoneSwitch, CmdGetCalInfo, CmdClearHistory, CmdGetSedentaryTime,
		CmdSetAlarm, CmdSetUserInfo, CmdSetRightHand, CmdForceSleep,
	}

	for _, kind := range unsupported {
		t.Run(kind.String(), func(t *testing.T) {
			_, err := Encode(NewCommand(kind))
			if !errors.Is(err, ErrUnsupportedCommand) {
				t.Fatalf("Encode(%s) error = %v, want ErrUnsupportedCommand", kind, err)
			}

			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("error is %T, want *ProtocolError", err)
			}
			if pe.Kind != KindUnsupportedCommand {
				t.Errorf("kind = %v, want %v", pe.Kind, KindUnsupportedCommand)
			}
			if NewCommand(kind).Supported() {
				t.Errorf("Supported() = true for %s", kind)
			}
		})
	}
}

func TestParseCommandKind(t *testing.T) {
	kind, err := ParseCommandKind("getdatainfo")
	if err != nil {
		t.Fatalf("ParseCommandKind() error = %v", err)
	}
	if kind != CmdGetDataInfo {
		t.Errorf("ParseCommandKind() = %v, want %v", kind, CmdGetDataInfo)
	}

	if _, err := ParseCommandKind("selfdestruct"); err == nil {
		t.Error("ParseCommandKind(unknown) should fail")
	}
}

func TestCommandOpcodeName(t *testing.T) {
	for kind := CmdReset; kind <= CmdGetDataFinish; kind++ {
		c := Command{Kind: kind}
		body, err := c.Body()
		if err != nil {
			continue
		}
		if got := CommandOpcodeName(body[0]); got != kind.String() {
			t.Errorf("CommandOpcodeName(0x%02x) = %q, want %q", body[0], got, kind.String())
		}
	}
	if got := CommandOpcodeName(OpPairOK); got != "Unknown(0x49)" {
		t.Errorf("CommandOpcodeName(PairOk) = %q, want Unknown(0x49)", got)
	}
}

func TestCommand_String(t *testing.T) {
	if got := GetData(4, 1).String(); got != "GetData{start=4, file=1}" {
		t.Errorf("String() = %q", got)
	}
	if got := NewCommand(CmdNewPairing).String(); got != "NewPairing" {
		t.Errorf("String() = %q", got)
	}
	if got := CommandKind(99).String(); got != "CommandKind(99)" {
		t.Errorf("String() = %q", got)
	}
}
