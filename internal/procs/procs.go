// Package procs answers "is this process still running?" for lock holders.
//
// Two oracles are provided. TableOracle takes a point-in-time snapshot of
// every PID on the host (the procfs table on Linux, the go-ps process list
// elsewhere) and checks membership. SignalOracle checks a single PID with signal 0.
// Both are advisory: a PID recycled by an unrelated process reads as alive.
package procs

import (
	"errors"
	"fmt"
)

// Liveness oracle kinds accepted by New.
const (
	KindTable  = "table"
	KindSignal = "signal"
)

// ErrUnsupported is returned when the platform cannot answer liveness queries.
var ErrUnsupported = errors.New("process liveness checks are not supported on this platform")

// Oracle reports whether a process is currently running on this host.
type Oracle interface {
	IsAlive(pid int) (bool, error)
}

// New returns the oracle registered under kind. An empty kind selects the
// process-table oracle.
func New(kind string) (Oracle, error) {
	switch kind {
	case "", KindTable:
		return NewTableOracle(), nil
	case KindSignal:
		return SignalOracle{}, nil
	default:
		return nil, fmt.Errorf("unknown liveness oracle %q (want %q or %q)", kind, KindTable, KindSignal)
	}
}

// StaticOracle treats exactly the PIDs in the set as alive.
type StaticOracle map[int]bool

// NewStaticOracle builds a StaticOracle from a list of live PIDs.
func NewStaticOracle(pids ...int) StaticOracle {
	s := make(StaticOracle, len(pids))
	for _, pid := range pids {
		s[pid] = true
	}
	return s
}

// IsAlive implements Oracle.
func (s StaticOracle) IsAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	return s[pid], nil
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(pid int) (bool, error)

// IsAlive implements Oracle.
func (f OracleFunc) IsAlive(pid int) (bool, error) {
	return f(pid)
}
