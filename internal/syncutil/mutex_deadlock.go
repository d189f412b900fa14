//go:build deadlock

// Package syncutil provides the lock types used by the link.
// This file is compiled when building with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex so a blocked Submit reports the holder.
type Mutex struct {
	deadlock.Mutex
}
