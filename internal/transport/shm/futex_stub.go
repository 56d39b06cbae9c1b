//go:build !linux

package shm

import "time"

const futexSupported = false

func futexWaitTimeout(addr *uint32, val uint32, timeout time.Duration) {
	if timeout > pollInterval {
		timeout = pollInterval
	}
	time.Sleep(timeout)
}

func futexWake(*uint32, int) {}
