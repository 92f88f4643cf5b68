// Package lifecycle tracks process state shared between the signal handler
// and the health endpoint.
package lifecycle

import "sync/atomic"

var draining atomic.Bool

// BeginShutdown marks the process as draining. New traffic should be pointed
// elsewhere; the health endpoint reports shutting-down from here on.
func BeginShutdown() {
	draining.Store(true)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return draining.Load()
}

// Reset clears the drain flag. For tests only.
func Reset() {
	draining.Store(false)
}
