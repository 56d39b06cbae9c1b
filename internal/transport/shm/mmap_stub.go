//go:build !unix

package shm

import (
	"errors"
	"os"
)

const mmapSupported = false

func mapFile(*os.File, int) ([]byte, error) {
	return nil, errors.New("mmap not supported on this platform")
}

func unmapFile([]byte) error { return nil }
