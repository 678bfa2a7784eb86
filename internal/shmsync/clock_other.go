//go:build !linux

package shmsync

func nowNanos() int64 {
	return fallbackNowNanos()
}
