//go:build deadlock

// Package syncutil provides mutex types that can optionally use deadlock detection.
// This file is compiled when building with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex is a deadlock-detecting mutex
type Mutex struct {
	deadlock.Mutex
}

// DeadlockDetection reports whether lock-order checking is compiled in
const DeadlockDetection = true
