package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/banddump/internal/protocol"
)

func TestGetConfigDir(t *testing.T) {
	t.Setenv(PathEnv, "")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "banddump") {
		t.Errorf("GetConfigDir() = %v, should contain 'banddump'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux and other Unix systems")
	}
	t.Setenv(PathEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != filepath.Join("/tmp/xdg", "banddump") {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/banddump", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv(PathEnv, "")

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestGetConfigPath_Override(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv(PathEnv, want)

	got, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if got != want {
		t.Errorf("GetConfigPath() = %v, want %v", got, want)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != CurrentVersion {
		t.Errorf("NewRegistry().Version = %v, want %v", reg.Version, CurrentVersion)
	}
	if reg.Trackers == nil {
		t.Error("NewRegistry().Trackers should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}
	if reg.Preferences.FileID != 1 {
		t.Errorf("NewRegistry().Preferences.FileID = %v, want 1", reg.Preferences.FileID)
	}
	if reg.Preferences.ReceiveTimeout != 0 {
		t.Errorf("NewRegistry().Preferences.ReceiveTimeout = %v, want 0", reg.Preferences.ReceiveTimeout)
	}
	if reg.Preferences.FinishAck {
		t.Error("NewRegistry().Preferences.FinishAck should be false by default")
	}
}

func TestPreferencesDurations(t *testing.T) {
	tests := []struct {
		name     string
		prefs    *Preferences
		receive  time.Duration
		discover time.Duration
	}{
		{"nil", nil, 0, 5 * time.Second},
		{"zero", &Preferences{}, 0, 5 * time.Second},
		{"set", &Preferences{ReceiveTimeout: 3, DiscoverTimeout: 2}, 3 * time.Second, 2 * time.Second},
		{"negative", &Preferences{ReceiveTimeout: -1, DiscoverTimeout: -1}, 0, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.prefs.ReceiveTimeoutDuration(); got != tt.receive {
				t.Errorf("ReceiveTimeoutDuration() = %v, want %v", got, tt.receive)
			}
			if got := tt.prefs.DiscoverTimeoutDuration(); got != tt.discover {
				t.Errorf("DiscoverTimeoutDuration() = %v, want %v", got, tt.discover)
			}
		})
	}
}

func TestRegistryEnsureTracker(t *testing.T) {
	reg := NewRegistry()

	tracker1 := reg.EnsureTracker("ID107 HR")
	if tracker1 == nil {
		t.Fatal("EnsureTracker() returned nil")
	}

	tracker2 := reg.EnsureTracker("ID107 HR")
	if tracker1 != tracker2 {
		t.Error("EnsureTracker() should return same instance for same name")
	}

	tracker3 := reg.EnsureTracker("ID115")
	if tracker1 == tracker3 {
		t.Error("EnsureTracker() should create new instance for different name")
	}

	var empty Registry
	if empty.EnsureTracker("x") == nil {
		t.Error("EnsureTracker() on a zero Registry returned nil")
	}
}

func TestRegistryUpdateTrackerLastSeen(t *testing.T) {
	reg := NewRegistry()

	before := time.Now()
	reg.UpdateTrackerLastSeen("ID107 HR", "ws://10.0.0.5:8080/link")
	after := time.Now()

	tracker := reg.GetTracker("ID107 HR")
	if tracker == nil {
		t.Fatal("Tracker should exist after UpdateTrackerLastSeen()")
	}
	if tracker.BridgeURL != "ws://10.0.0.5:8080/link" {
		t.Errorf("BridgeURL = %v, want ws://10.0.0.5:8080/link", tracker.BridgeURL)
	}
	if tracker.LastSeen.Before(before) || tracker.LastSeen.After(after) {
		t.Errorf("LastSeen = %v, should be between %v and %v", tracker.LastSeen, before, after)
	}

	// An empty URL keeps the previous bridge
	reg.UpdateTrackerLastSeen("ID107 HR", "")
	if tracker.BridgeURL != "ws://10.0.0.5:8080/link" {
		t.Errorf("BridgeURL = %v after empty update, want unchanged", tracker.BridgeURL)
	}
}

func TestRegistryRecordDownload(t *testing.T) {
	reg := NewRegistry()
	info := protocol.DataInfo{DataStart: 0, DataEnd: 12, FlashSize: 64}

	reg.RecordDownload("ID107 HR", "V1.2.7", info, "/tmp/band.bin")

	tracker := reg.GetTracker("ID107 HR")
	if tracker == nil {
		t.Fatal("Tracker should exist after RecordDownload()")
	}
	if tracker.LastFirmware != "V1.2.7" {
		t.Errorf("LastFirmware = %v, want V1.2.7", tracker.LastFirmware)
	}
	if tracker.LastImage != "/tmp/band.bin" {
		t.Errorf("LastImage = %v, want /tmp/band.bin", tracker.LastImage)
	}
	if tracker.LastRange == nil || tracker.LastRange.DataEnd != 12 || tracker.LastRange.FlashSize != 64 {
		t.Errorf("LastRange = %+v, want end 12 flash 64", tracker.LastRange)
	}
}

func TestRegistryDisplayName(t *testing.T) {
	reg := NewRegistry()

	if got := reg.DisplayName("ID107 HR"); got != "ID107 HR" {
		t.Errorf("DisplayName() = %v, want device name", got)
	}

	reg.SetTrackerNickname("ID107 HR", "Left wrist")
	if got := reg.DisplayName("ID107 HR"); got != "Left wrist" {
		t.Errorf("DisplayName() = %v, want 'Left wrist'", got)
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.SetTrackerNickname("ID107 HR", "Test Band")
	reg.RecordDownload("ID107 HR", "V1.2.7", protocol.DataInfo{DataEnd: 3, FlashSize: 8}, "/tmp/a.bin")
	reg.Preferences.FinishAck = true
	reg.Preferences.OutputDir = "/tmp/out"

	if err := reg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# banddump configuration file") {
		t.Error("Saved config should start with the header comment")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	tracker := loaded.GetTracker("ID107 HR")
	if tracker == nil {
		t.Fatal("Tracker should exist in loaded registry")
	}
	if tracker.Nickname != "Test Band" {
		t.Errorf("Loaded nickname = %v, want 'Test Band'", tracker.Nickname)
	}
	if tracker.LastRange == nil || tracker.LastRange.DataEnd != 3 {
		t.Errorf("Loaded LastRange = %+v, want end 3", tracker.LastRange)
	}
	if !loaded.Preferences.FinishAck || loaded.Preferences.OutputDir != "/tmp/out" {
		t.Errorf("Loaded preferences = %+v", loaded.Preferences)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	reg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Version != CurrentVersion || reg.Preferences == nil {
		t.Errorf("LoadFile() of missing file = %+v, want defaults", reg)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, r *Registry)
	}{
		{
			name: "minimal",
			yaml: "version: 1\n",
			check: func(t *testing.T, r *Registry) {
				if r.Trackers == nil || r.Preferences == nil {
					t.Error("Parse() should fill in trackers and preferences")
				}
			},
		},
		{
			name: "file id defaults to 1",
			yaml: "version: 1\npreferences:\n  output_dir: /data\n",
			check: func(t *testing.T, r *Registry) {
				if r.Preferences.FileID != 1 {
					t.Errorf("FileID = %v, want 1", r.Preferences.FileID)
				}
				if r.Preferences.OutputDir != "/data" {
					t.Errorf("OutputDir = %v, want /data", r.Preferences.OutputDir)
				}
			},
		},
		{
			name: "trackers",
			yaml: "version: 1\ntrackers:\n  \"ID107 HR\":\n    serial_port: /dev/ttyUSB0\n",
			check: func(t *testing.T, r *Registry) {
				if tr := r.GetTracker("ID107 HR"); tr == nil || tr.SerialPort != "/dev/ttyUSB0" {
					t.Errorf("GetTracker() = %+v, want serial port /dev/ttyUSB0", tr)
				}
			},
		},
		{name: "wrong version", yaml: "version: 2\n", wantErr: true},
		{name: "missing version", yaml: "trackers: {}\n", wantErr: true},
		{name: "not yaml", yaml: "version: [1\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := Parse([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, reg)
			}
		})
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(PathEnv, path)

	got, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if got != path {
		t.Errorf("CreateDefaultConfig() path = %v, want %v", got, path)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(reg.Trackers) != 1 {
		t.Errorf("default config has %d trackers, want 1", len(reg.Trackers))
	}

	if _, err := CreateDefaultConfig(); err == nil {
		t.Error("CreateDefaultConfig() should refuse to overwrite")
	}
}

func BenchmarkEnsureTracker(b *testing.B) {
	reg := NewRegistry()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.EnsureTracker("ID107 HR")
	}
}
