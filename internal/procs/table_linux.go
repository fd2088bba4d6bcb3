package procs

import (
	"fmt"
	"os"

	"github.com/prometheus/procfs"
)

// scanProcFS lists the PIDs under a procfs mount.
func scanProcFS(dir string) ([]int, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	fs, err := procfs.NewFS(dir)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", dir, err)
	}
	all, err := fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	pids := make([]int, 0, len(all))
	for _, p := range all {
		pids = append(pids, p.PID)
	}
	return pids, nil
}
