//go:build unix

package browser

import (
	"errors"
	"syscall"
)

// Alive reports whether a process with the given pid still exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
