//go:build linux

package shmsync

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// maxWake asks the kernel to wake every waiter on the word; INT32_MAX is the
// conventional "wake everyone" value for FUTEX_WAKE.
const maxWake = 1<<31 - 1

// futexWait blocks while *addr == expected, for up to timeout (timeout < 0
// means no deadline). It returns false if it returned because of a timeout,
// true otherwise (woken, or the value had already changed).
//
// Deliberately omits FUTEX_PRIVATE_FLAG: that optimization assumes the
// futex word is only ever touched by threads of one process, which is
// exactly the assumption this package exists to not make.
func futexWait(addr *uint32, expected uint32, timeout time.Duration) bool {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	for {
		_, _, errno := unix.Syscall6(
			unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)),
			unix.FUTEX_WAIT,
			uintptr(expected),
			uintptr(unsafe.Pointer(ts)),
			0, 0,
		)
		switch errno {
		case 0, unix.EAGAIN:
			// EAGAIN means *addr != expected by the time the kernel
			// checked: the caller's predicate may already be
			// satisfied, so let it re-check instead of busy-looping
			// here.
			return true
		case unix.EINTR:
			continue
		case unix.ETIMEDOUT:
			return false
		default:
			// Treat any other kernel failure as a spurious wake;
			// the caller always re-checks its predicate.
			return true
		}
	}
}

func futexWake(addr *uint32, n int) {
	unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		unix.FUTEX_WAKE,
		uintptr(n),
		0, 0, 0,
	)
}
