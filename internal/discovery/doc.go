// Package discovery finds BLE bridges on the local network over mDNS.
//
// A bridge is a small gateway (typically a single board computer with a BLE
// radio) that relays 20-byte tracker frames over a WebSocket. Bridges
// advertise the "_bandbridge._tcp" service type with TXT records naming the
// WebSocket path and the trackers currently in range:
//
//	path=/link
//	devices=ID107 HR,ID115
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.NamePattern = "ID107"
//	bridges, err := scanner.Scan(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, b := range bridges {
//	    fmt.Println(b, b.LinkURL(b.Match("ID107")[0]))
//	}
//
// Trackers are matched by name with MatchName: a case-insensitive prefix
// match, where an empty pattern matches everything.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
