package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TXT record keys advertised by bridges
const (
	TxtPath    = "path"    // WebSocket path, e.g. "/link"
	TxtDevices = "devices" // Comma separated names of trackers in range
	TxtVersion = "version" // Bridge software version
)

// ControlCharacteristic is the GATT characteristic the bridge writes
// commands to and subscribes for notifications on
const ControlCharacteristic = "ffe9"

// Bridge represents a discovered BLE bridge on the network
type Bridge struct {
	// Instance is the mDNS service instance name (e.g., "bandbridge-kitchen")
	Instance string

	// Hostname is the mDNS hostname (e.g., "raspberrypi.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the bridge has none
	IP string

	// Port is the WebSocket port
	Port int

	// Path is the WebSocket endpoint path
	Path string

	// Trackers lists the tracker names the bridge can currently see
	Trackers []string

	// Metadata contains all mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the bridge was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Bridge %s (%s) at %s", b.Instance, b.Hostname, net.JoinHostPort(b.IP, strconv.Itoa(b.Port)))
}

// URL returns the bridge's WebSocket URL
func (b *Bridge) URL() string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(b.IP, strconv.Itoa(b.Port)),
		Path:   b.path(),
	}
	return u.String()
}

// LinkURL returns the WebSocket URL that asks the bridge to connect to the
// named tracker
func (b *Bridge) LinkURL(device string) string {
	u, _ := WithDevice(b.URL(), device)
	return u
}

// WithDevice adds the tracker selection query to a bridge URL. An empty
// device leaves the choice to the bridge.
func WithDevice(bridgeURL, device string) (string, error) {
	u, err := url.Parse(bridgeURL)
	if err != nil {
		return "", fmt.Errorf("invalid bridge URL %q: %w", bridgeURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid bridge URL %q: scheme must be ws or wss", bridgeURL)
	}

	q := u.Query()
	if device != "" {
		q.Set("device", device)
	}
	if q.Get("char") == "" {
		q.Set("char", ControlCharacteristic)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Serves reports whether the bridge advertises a tracker matching pattern
func (b *Bridge) Serves(pattern string) bool {
	return len(b.Match(pattern)) > 0
}

// Match returns the advertised trackers matching pattern
func (b *Bridge) Match(pattern string) []string {
	var out []string
	for _, name := range b.Trackers {
		if MatchName(name, pattern) {
			out = append(out, name)
		}
	}
	return out
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}

func (b *Bridge) path() string {
	p := b.Path
	if p == "" {
		p = DefaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// MatchName reports whether a tracker's advertised name matches pattern.
// The match is a case-insensitive prefix match after trimming spaces, and
// an empty pattern matches every name.
func MatchName(name, pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return true
	}
	name = strings.TrimSpace(name)
	return len(name) >= len(pattern) && strings.EqualFold(name[:len(pattern)], pattern)
}

// parseTrackers splits the devices TXT value
func parseTrackers(v string) []string {
	var out []string
	for _, name := range strings.Split(v, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
