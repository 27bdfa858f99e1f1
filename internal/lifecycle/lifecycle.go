package lifecycle

import "sync/atomic"

var shuttingDown atomic.Bool

// SetShuttingDown flips the drain flag. main sets it when SIGTERM/SIGINT arrives;
// /health reports shutting-down (503) while it is true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}
