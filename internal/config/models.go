package config

import (
	"time"

	"github.com/muurk/banddump/internal/protocol"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Registry represents the entire user configuration file.
// It stores what is known about each tracker and the application preferences.
type Registry struct {
	Version     int                 `yaml:"version"`
	Trackers    map[string]*Tracker `yaml:"trackers,omitempty"` // Keyed by advertised device name
	Preferences *Preferences        `yaml:"preferences,omitempty"`
}

// Tracker represents what we remember about one tracker.
type Tracker struct {
	Nickname     string     `yaml:"nickname,omitempty"`      // User-friendly name
	BridgeURL    string     `yaml:"bridge_url,omitempty"`    // WebSocket bridge that reached it last
	SerialPort   string     `yaml:"serial_port,omitempty"`   // Serial bridge port, when used instead
	LastFirmware string     `yaml:"last_firmware,omitempty"` // Firmware reported by GetVersion
	LastSeen     time.Time  `yaml:"last_seen,omitempty"`     // Last discovery/connection time
	LastImage    string     `yaml:"last_image,omitempty"`    // Path of the last downloaded image
	LastRange    *RangeMeta `yaml:"last_range,omitempty"`    // Data range of the last download
}

// RangeMeta mirrors protocol.DataInfo in the config file.
type RangeMeta struct {
	DataStart uint16 `yaml:"data_start"`
	DataEnd   uint16 `yaml:"data_end"`
	FlashSize uint16 `yaml:"flash_size"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	OutputDir       string `yaml:"output_dir"`            // Where images are written
	NamePrefix      string `yaml:"name_prefix,omitempty"` // Only trackers whose name starts with this are offered
	ReceiveTimeout  int    `yaml:"receive_timeout"`       // Seconds to wait for a frame, 0 waits forever
	FileID          uint16 `yaml:"file_id"`               // File requested by GetData
	DiscoverTimeout int    `yaml:"discover_timeout"`      // mDNS discovery timeout in seconds
	FinishAck       bool   `yaml:"finish_ack"`            // Send GetDataFinish after a download
	BaudRate        int    `yaml:"baud_rate,omitempty"`   // Serial bridge speed
}

func defaultPreferences() *Preferences {
	return &Preferences{
		OutputDir:       ".",
		ReceiveTimeout:  0,
		FileID:          1,
		DiscoverTimeout: 5,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Trackers:    make(map[string]*Tracker),
		Preferences: defaultPreferences(),
	}
}

// ReceiveTimeoutDuration returns the receive timeout as a duration
func (p *Preferences) ReceiveTimeoutDuration() time.Duration {
	if p == nil || p.ReceiveTimeout <= 0 {
		return 0
	}
	return time.Duration(p.ReceiveTimeout) * time.Second
}

// DiscoverTimeoutDuration returns the discovery timeout as a duration
func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// GetTracker retrieves tracker metadata by device name.
// Returns nil if the tracker isn't in the registry.
func (r *Registry) GetTracker(name string) *Tracker {
	return r.Trackers[name]
}

// EnsureTracker returns the entry for name, creating it if needed.
func (r *Registry) EnsureTracker(name string) *Tracker {
	if r.Trackers == nil {
		r.Trackers = make(map[string]*Tracker)
	}

	if tracker, exists := r.Trackers[name]; exists {
		return tracker
	}

	tracker := &Tracker{}
	r.Trackers[name] = tracker
	return tracker
}

// UpdateTrackerLastSeen records which bridge reached a tracker and when.
func (r *Registry) UpdateTrackerLastSeen(name, bridgeURL string) {
	tracker := r.EnsureTracker(name)
	tracker.LastSeen = time.Now()
	if bridgeURL != "" {
		tracker.BridgeURL = bridgeURL
	}
}

// RecordDownload stores the outcome of a successful download.
func (r *Registry) RecordDownload(name, firmware string, info protocol.DataInfo, imagePath string) {
	tracker := r.EnsureTracker(name)
	tracker.LastSeen = time.Now()
	tracker.LastFirmware = firmware
	tracker.LastImage = imagePath
	tracker.LastRange = &RangeMeta{
		DataStart: info.DataStart,
		DataEnd:   info.DataEnd,
		FlashSize: info.FlashSize,
	}
}

// SetTrackerNickname sets a user-friendly nickname for a tracker.
func (r *Registry) SetTrackerNickname(name, nickname string) {
	tracker := r.EnsureTracker(name)
	tracker.Nickname = nickname
}

// DisplayName returns the nickname if set, else the device name
func (r *Registry) DisplayName(name string) string {
	if t := r.GetTracker(name); t != nil && t.Nickname != "" {
		return t.Nickname
	}
	return name
}
