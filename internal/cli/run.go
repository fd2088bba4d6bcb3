package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leonletto/lockrun/internal/runner"
)

// RunOptions describes a guarded exec.
type RunOptions struct {
	Command  string
	Action   string
	Identity string // overrides Command/Action when set
	Argv     []string
	Stdio    runner.Stdio
}

// RunResult is the outcome of a guarded exec.
type RunResult struct {
	Identity  string `json:"identity"`
	Acquired  bool   `json:"acquired"`
	HolderPID int    `json:"holder_pid,omitempty"`
	ExitCode  int    `json:"exit_code"`
	Error     string `json:"error,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// Run executes opts.Argv under the session's guard. History problems are
// logged and the run goes ahead without a ledger.
func Run(ctx context.Context, s *Session, opts RunOptions) *RunResult {
	runOpts := []runner.Option{
		runner.WithLogger(s.Log),
		runner.WithMetrics(s.Metrics, s.Config.MetricsTextfile),
	}

	store, err := s.OpenHistory()
	switch {
	case errors.Is(err, errHistoryDisabled):
	case err != nil:
		s.Log.Warn().Err(err).Msg("continuing without run history")
	default:
		defer func() { _ = store.Close() }()
		runOpts = append(runOpts, runner.WithHistory(store))
	}

	action := runner.ExecAction(opts.Command, opts.Action, opts.Argv, opts.Stdio)
	action.Identity = opts.Identity
	res := runner.New(s.Guard, runOpts...).Run(ctx, action)

	if store != nil && s.Config.HistoryKeep > 0 {
		if _, err := store.Prune(context.WithoutCancel(ctx), s.Config.HistoryKeep); err != nil {
			s.Log.Warn().Err(err).Msg("failed to prune run history")
		}
	}

	result := &RunResult{
		Identity:  res.Identity,
		Acquired:  res.Acquired,
		HolderPID: res.HolderPID,
		ExitCode:  res.ExitCode,
		RunID:     res.RunID,
	}
	if res.Err != nil {
		result.Error = res.Err.Error()
	}
	if res.Acquired {
		result.Duration = res.Duration.Round(time.Millisecond).String()
	}
	return result
}

// FormatRun describes a run that did not complete normally. It returns an
// empty string for a successful run, whose output is the child's own.
func FormatRun(result *RunResult) string {
	switch {
	case !result.Acquired && result.Error == "":
		if result.HolderPID > 0 {
			return fmt.Sprintf("%s is locked by PID %d, skipping\n", result.Identity, result.HolderPID)
		}
		return fmt.Sprintf("%s is locked, skipping\n", result.Identity)
	case !result.Acquired:
		return fmt.Sprintf("%s: %s\n", result.Identity, result.Error)
	}
	return ""
}
