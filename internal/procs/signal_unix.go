//go:build unix

package procs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// SignalOracle checks a PID with the null signal.
type SignalOracle struct{}

// IsAlive implements Oracle. EPERM means the process exists but belongs to
// another user, which still counts as running.
func (SignalOracle) IsAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, err
	}
}
