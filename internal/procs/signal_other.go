//go:build !unix

package procs

// SignalOracle is unavailable on non-unix platforms.
type SignalOracle struct{}

// IsAlive always fails with ErrUnsupported.
func (SignalOracle) IsAlive(pid int) (bool, error) {
	return false, ErrUnsupported
}
