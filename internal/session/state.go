package session

import (
	"fmt"
	"time"
)

// State is the session state published to observers
type State int

const (
	// Pairing is entered as soon as the session starts
	Pairing State = iota
	// Connected means the link is up and no command has been sent yet
	Connected
	// Ready means version check and pairing succeeded
	Ready
	// Receiving means the bulk download is running
	Receiving
	// Disconnected means the link was lost; terminal
	Disconnected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Pairing:
		return "Pairing"
	case Connected:
		return "Connected"
	case Ready:
		return "Ready"
	case Receiving:
		return "Receiving"
	case Disconnected:
		return "Disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind tells state changes and progress reports apart
type EventKind int

const (
	// EventStateChanged carries a state transition
	EventStateChanged EventKind = iota
	// EventProgress carries download progress
	EventProgress
)

// Progress describes how far the bulk download has come
type Progress struct {
	Block        int // Block just completed (0-based)
	Blocks       int // Blocks to download
	Packets      int // Frames received so far, all blocks
	TotalPackets int // Frames expected, all blocks
	Bytes        int // Image bytes assembled so far
}

// Fraction returns progress as a value in [0, 1]
func (p Progress) Fraction() float64 {
	if p.TotalPackets == 0 {
		return 1
	}
	return float64(p.Packets) / float64(p.TotalPackets)
}

// Event is one observation published by the session
type Event struct {
	Kind     EventKind
	State    State    // Valid for EventStateChanged
	Progress Progress // Valid for EventProgress
	Time     time.Time
}

func (e Event) String() string {
	if e.Kind == EventProgress {
		return fmt.Sprintf("Progress{block=%d/%d, %.1f%%}", e.Progress.Block+1, e.Progress.Blocks, e.Progress.Fraction()*100)
	}
	return fmt.Sprintf("State{%s}", e.State)
}
