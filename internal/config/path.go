package config

import (
	"os"
	"path/filepath"
)

// DefaultShmDir picks where channel segments live: the kernel's shared
// memory mount when the host has one, else a directory under the system
// temp root.
func DefaultShmDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}
	return filepath.Join(os.TempDir(), "iox2")
}
