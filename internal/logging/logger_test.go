package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"chatty", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("default logger should be silent")
	}
}

func TestLogFrame(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	LogFrame(l, "rx", 3, []byte{0x7e, 0x49, 0xff})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["direction"] != "rx" {
		t.Errorf("direction = %v, want rx", fields["direction"])
	}
	if fields["opcode"] != "0x49" {
		t.Errorf("opcode = %v, want 0x49", fields["opcode"])
	}
	if fields["hex"] != "7e49ff" {
		t.Errorf("hex = %v, want 7e49ff", fields["hex"])
	}
}

func TestLogFrame_SkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	LogFrame(zap.New(core), "tx", 0, []byte{0x7e})

	if logs.Len() != 0 {
		t.Errorf("got %d entries at info level, want 0", logs.Len())
	}
}

func TestAsciiDump(t *testing.T) {
	if got := asciiDump([]byte{'V', '1', 0x00, 0xff}); got != "V1.." {
		t.Errorf("asciiDump() = %q, want %q", got, "V1..")
	}
	if got := hexDump(make([]byte, 300)); len(got) != 512+3 {
		t.Errorf("hexDump() length = %d, want %d", len(got), 512+3)
	}
}
