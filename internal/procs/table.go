package procs

import (
	"errors"
	"fmt"
	"os"

	ps "github.com/mitchellh/go-ps"
)

const defaultProcDir = "/proc"

// TableOracle checks liveness against a snapshot of every running PID.
// A fresh snapshot is taken on each IsAlive call.
type TableOracle struct {
	// ProcDir is a procfs mount, read where the platform has one. Empty
	// skips it.
	ProcDir string

	// PS lists running PIDs when ProcDir is unavailable.
	PS func() ([]int, error)
}

// NewTableOracle returns an oracle reading /proc, falling back to the
// platform process list.
func NewTableOracle() *TableOracle {
	return &TableOracle{ProcDir: defaultProcDir, PS: processList}
}

// IsAlive implements Oracle.
func (o *TableOracle) IsAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	live, err := o.Snapshot()
	if err != nil {
		return false, err
	}
	_, ok := live[pid]
	return ok, nil
}

// Snapshot returns the set of PIDs running right now.
func (o *TableOracle) Snapshot() (map[int]struct{}, error) {
	if o.ProcDir != "" {
		pids, err := scanProcFS(o.ProcDir)
		if err == nil && len(pids) > 0 {
			return pidSet(pids), nil
		}
		// An empty or missing mount is not procfs.
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if o.PS == nil {
		return nil, ErrUnsupported
	}
	pids, err := o.PS()
	if err != nil {
		return nil, err
	}
	return pidSet(pids), nil
}

func pidSet(pids []int) map[int]struct{} {
	live := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		if pid > 0 {
			live[pid] = struct{}{}
		}
	}
	return live
}

// processList enumerates host processes with go-ps.
func processList() ([]int, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.Pid())
	}
	return pids, nil
}
