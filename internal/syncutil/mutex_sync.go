//go:build !deadlock

// Package syncutil provides the lock types used by the link. By default they
// are plain sync mutexes; build with -tags=deadlock to swap in
// github.com/sasha-s/go-deadlock and catch lock-order bugs in callers that
// share a Link between goroutines.
package syncutil

import "sync"

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}
