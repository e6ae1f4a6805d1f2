//go:build linux

package fs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Datasync flushes file data (not metadata) to stable storage using
// fdatasync(2). Falls back to [File.Sync] when the kernel rejects it.
func Datasync(f File) error {
	err := unix.Fdatasync(int(f.Fd()))
	if err == nil {
		return nil
	}

	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) {
		return f.Sync()
	}

	return fmt.Errorf("fdatasync: %w", err)
}
