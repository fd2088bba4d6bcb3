package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/leonletto/lockrun/internal/guard"
)

// ListResult lists the markers in a lock directory.
type ListResult struct {
	Dir   string              `json:"dir"`
	Locks []*LockStatusResult `json:"locks"`
}

// ListLocks inspects every marker in the guard's directory.
func ListLocks(g *guard.Guard) (*ListResult, error) {
	markers, err := g.List()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	result := &ListResult{Dir: g.Dir(), Locks: make([]*LockStatusResult, 0, len(markers))}
	for _, m := range markers {
		result.Locks = append(result.Locks, statusFromMarker(m, now))
	}
	return result, nil
}

// FormatList formats a list result as a table.
func FormatList(result *ListResult) string {
	if len(result.Locks) == 0 {
		return fmt.Sprintf("No locks in %s\n", result.Dir)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tSTATE\tPID\tAGE")
	for _, l := range result.Locks {
		pid := "-"
		if l.PID > 0 {
			pid = fmt.Sprintf("%d", l.PID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Identity, l.State, pid, l.Age)
	}
	_ = w.Flush()
	return b.String()
}
