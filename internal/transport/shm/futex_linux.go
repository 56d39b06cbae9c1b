//go:build linux

package shm

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const futexSupported = true

// Futex operation codes. x/sys/unix exports only the syscall numbers, not
// the op constants. The shared (non-private) ops are required because the
// word lives in a mapping shared across processes.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// futexWaitTimeout blocks until the word at addr no longer holds val, a wake
// arrives, or the timeout elapses. Spurious returns are fine; callers re-check
// their condition.
func futexWaitTimeout(addr *uint32, val uint32, timeout time.Duration) {
	ts := unix.NsecToTimespec(int64(timeout))
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(futexWaitOp),
		uintptr(val), uintptr(unsafe.Pointer(&ts)), 0, 0)
}

// futexWake wakes up to n waiters blocked on the word at addr.
func futexWake(addr *uint32, n int) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), uintptr(futexWakeOp),
		uintptr(n), 0, 0, 0)
}
