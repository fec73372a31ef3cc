//go:build !deadlock

// Package syncutil provides mutex types that can optionally use deadlock detection.
// By default the standard sync.Mutex is used with zero overhead.
// Build with -tags=deadlock to enable deadlock detection via github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex is a plain sync.Mutex
type Mutex struct {
	sync.Mutex
}

// DeadlockDetection reports whether lock-order checking is compiled in
const DeadlockDetection = false
