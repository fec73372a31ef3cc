package discovery

import (
	"fmt"
	"strings"

	"github.com/grandcat/zeroconf"
)

// Advertisement is a running mDNS registration
type Advertisement struct {
	server *zeroconf.Server
}

// TXTRecords builds the TXT records a bridge advertises
func TXTRecords(path string, trackers []string, version string) []string {
	txt := []string{
		TxtPath + "=" + path,
		TxtDevices + "=" + strings.Join(trackers, ","),
	}
	if version != "" {
		txt = append(txt, TxtVersion+"="+version)
	}
	return txt
}

// Advertise registers a bridge under ServiceType so scanners can find it
func Advertise(instance string, port int, path string, trackers []string, version string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(path, trackers, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the registration
func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}
