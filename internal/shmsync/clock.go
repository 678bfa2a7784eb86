package shmsync

import "time"

// NowNanos returns a nanosecond reading from a clock that is monotonic and
// comparable across processes on the same machine. This is what
// purgeUnresponsiveReaders needs: now - lastAccess compared against
// READER_TIMEOUT_NS only makes sense if "now" and the stamp a different
// process wrote are drawn from the same clock source.
func NowNanos() int64 {
	return nowNanos()
}

// fallbackNowNanos is used on platforms without a shared monotonic clock
// reading available, and as a last resort if the platform syscall fails.
func fallbackNowNanos() int64 {
	return time.Now().UnixNano()
}
