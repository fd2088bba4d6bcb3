//go:build !linux

package procs

import (
	"fmt"
	"os"
)

// scanProcFS reports no procfs, so the process list is used instead.
func scanProcFS(dir string) ([]int, error) {
	return nil, fmt.Errorf("procfs %s: %w", dir, os.ErrNotExist)
}
