package util

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessAlive reports whether pid names an existing process. A
// terminated child that has not been reaped yet still counts as alive.
func IsProcessAlive(pid int) bool {
	err := unix.Kill(pid, 0)

	// EPERM: the process exists, but belongs to someone else
	return err == nil || errors.Is(err, unix.EPERM)
}
