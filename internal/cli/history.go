package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/leonletto/lockrun/internal/history"
)

// HistoryResult lists recorded runs, newest first.
type HistoryResult struct {
	Runs []history.Run `json:"runs"`
}

// History lists runs, optionally for a single identity.
func History(ctx context.Context, s *Session, identity string, limit int) (*HistoryResult, error) {
	store, err := s.OpenHistory()
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(ctx, history.Filter{Identity: identity, Limit: limit})
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []history.Run{}
	}
	return &HistoryResult{Runs: runs}, nil
}

// FormatHistory formats runs as a table.
func FormatHistory(result *HistoryResult) string {
	if len(result.Runs) == 0 {
		return "No runs recorded\n"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tIDENTITY\tPID\tSTATUS\tEXIT\tDURATION")
	for _, r := range result.Runs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		status := string(r.Status)
		if r.Status == history.StatusDenied && r.HolderPID > 0 {
			status = fmt.Sprintf("denied (PID %d)", r.HolderPID)
		}
		duration := "-"
		if r.FinishedAt != nil && r.Status != history.StatusDenied {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Identity, r.PID, status, exit, duration)
	}
	_ = w.Flush()
	return b.String()
}

// PruneResult reports a history prune.
type PruneResult struct {
	Keep    int   `json:"keep"`
	Removed int64 `json:"removed"`
}

// PruneHistory keeps the newest keep runs per identity.
func PruneHistory(ctx context.Context, s *Session, keep int) (*PruneResult, error) {
	store, err := s.OpenHistory()
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.Prune(ctx, keep)
	if err != nil {
		return nil, err
	}
	return &PruneResult{Keep: keep, Removed: removed}, nil
}

// FormatPrune formats a prune result.
func FormatPrune(result *PruneResult) string {
	return fmt.Sprintf("Removed %d run(s), keeping the newest %d per lock\n", result.Removed, result.Keep)
}
