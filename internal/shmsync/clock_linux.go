//go:build linux

package shmsync

import "golang.org/x/sys/unix"

// CLOCK_MONOTONIC is a single kernel-wide clock shared by every process on
// the machine, unlike Go's runtime monotonic reading which is only
// comparable between two time.Time values taken in the same process.
func nowNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is effectively always available on Linux;
		// if the syscall itself fails the machine is in a bad enough
		// state that falling back to wall-clock ns is no worse.
		return fallbackNowNanos()
	}
	return ts.Nano()
}
