// Package runner executes named actions under a lock guard. It owns the
// framework side of the protocol: compute the lock identity, acquire
// before the action, skip the action when the lock is held, and release
// on every exit path once the action has finished.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonletto/lockrun/internal/guard"
	"github.com/leonletto/lockrun/internal/metrics"
)

// ExitLocked is the exit code for a run skipped because the lock was held
// (EX_TEMPFAIL: try again later).
const ExitLocked = 75

// recordTimeout bounds history writes, which run even after cancellation.
const recordTimeout = 5 * time.Second

// Action is a unit of protected work.
type Action struct {
	Command string
	Name    string

	// Identity overrides the identity derived from Command and Name.
	Identity string

	Run func(ctx context.Context) error
}

// LockIdentity returns the identity the action is guarded under.
func (a Action) LockIdentity() string {
	if a.Identity != "" {
		return a.Identity
	}
	return guard.Identity(a.Command, a.Name)
}

// Result describes one Run.
type Result struct {
	Identity  string
	Acquired  bool
	HolderPID int
	ExitCode  int
	Err       error
	RunID     string
	Duration  time.Duration
}

// Recorder persists run outcomes. *history.Store implements it.
type Recorder interface {
	Start(ctx context.Context, identity string, pid int) (string, error)
	Finish(ctx context.Context, id string, exitCode int, runErr error) error
	Denied(ctx context.Context, identity string, pid, holderPID int) (string, error)
}

// Runner runs actions under a Guard.
type Runner struct {
	guard    *guard.Guard
	log      zerolog.Logger
	history  Recorder
	metrics  *metrics.Metrics
	textfile string
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l.With().Str("component", "runner").Logger() }
}

// WithHistory records every run in rec.
func WithHistory(rec Recorder) Option {
	return func(r *Runner) { r.history = rec }
}

// WithMetrics records metrics in m and, when textfile is set, writes them
// there after each run.
func WithMetrics(m *metrics.Metrics, textfile string) Option {
	return func(r *Runner) {
		r.metrics = m
		r.textfile = textfile
	}
}

// New creates a Runner around g.
func New(g *guard.Guard, opts ...Option) *Runner {
	r := &Runner{
		guard: g,
		log:   zerolog.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run acquires the action's lock, runs it and releases the lock. A held
// lock yields Acquired=false and ExitCode=ExitLocked without running the
// action. A panic in the action is re-raised after the lock is released.
func (r *Runner) Run(ctx context.Context, a Action) (res Result) {
	identity := a.LockIdentity()
	res.Identity = identity
	log := r.log.With().Str("identity", identity).Logger()

	if a.Run == nil {
		res.Err = errors.New("action has no Run function")
		res.ExitCode = 1
		return res
	}

	ok, err := r.guard.TryAcquire(identity)
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire lock")
		r.metrics.RecordAcquisition(identity, metrics.ResultError)
		r.flushMetrics(log, identity)
		res.Err = fmt.Errorf("acquire lock %s: %w", identity, err)
		res.ExitCode = 1
		return res
	}
	if !ok {
		r.deny(ctx, log, &res)
		return res
	}

	res.Acquired = true
	log.Trace().Msg("lock acquired before action")
	r.metrics.RecordAcquisition(identity, metrics.ResultAcquired)
	r.startRecord(ctx, log, &res)

	start := r.now()
	defer func() {
		p := recover()
		if p != nil {
			res.Err = fmt.Errorf("action panicked: %v", p)
			res.ExitCode = 1
		}
		r.finish(ctx, log, &res, start)
		if p != nil {
			panic(p)
		}
	}()

	res.Err = a.Run(context.WithValue(ctx, identityKey{}, identity))
	res.ExitCode = ExitCode(res.Err)
	return res
}

func (r *Runner) deny(ctx context.Context, log zerolog.Logger, res *Result) {
	if m, err := r.guard.Inspect(res.Identity); err == nil {
		res.HolderPID = m.PID
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Debug().Err(err).Msg("could not inspect lock holder")
	}
	res.ExitCode = ExitLocked

	log.Warn().Int("holder_pid", res.HolderPID).Msg("action canceled, already locked")
	r.metrics.RecordAcquisition(res.Identity, metrics.ResultDenied)
	r.flushMetrics(log, res.Identity)

	if r.history == nil {
		return
	}
	rctx, cancel := recordContext(ctx)
	defer cancel()
	id, err := r.history.Denied(rctx, res.Identity, r.guard.PID(), res.HolderPID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to record denied run")
		return
	}
	res.RunID = id
}

func (r *Runner) startRecord(ctx context.Context, log zerolog.Logger, res *Result) {
	if r.history == nil {
		return
	}
	rctx, cancel := recordContext(ctx)
	defer cancel()
	id, err := r.history.Start(rctx, res.Identity, r.guard.PID())
	if err != nil {
		log.Warn().Err(err).Msg("failed to record run start")
		return
	}
	res.RunID = id
}

// finish releases the lock and records the outcome. Release failures are
// logged and counted but never change the action's result.
func (r *Runner) finish(ctx context.Context, log zerolog.Logger, res *Result, start time.Time) {
	end := r.now()
	res.Duration = end.Sub(start)

	log.Trace().Msg("unlocked after action")
	if err := r.guard.Release(res.Identity); err != nil {
		log.Warn().Err(err).Msg("failed to release lock")
		r.metrics.RecordReleaseFailure(res.Identity)
	}

	if res.Err != nil {
		log.Error().Err(res.Err).Int("exit_code", res.ExitCode).Dur("duration", res.Duration).Msg("action failed")
	} else {
		log.Debug().Dur("duration", res.Duration).Msg("action finished")
	}

	r.metrics.ObserveRun(res.Identity, res.Duration, res.ExitCode == 0, end)
	r.flushMetrics(log, res.Identity)

	if r.history == nil || res.RunID == "" {
		return
	}
	rctx, cancel := recordContext(ctx)
	defer cancel()
	if err := r.history.Finish(rctx, res.RunID, res.ExitCode, res.Err); err != nil {
		log.Warn().Err(err).Msg("failed to record run outcome")
	}
}

func (r *Runner) flushMetrics(log zerolog.Logger, identity string) {
	if err := r.metrics.WriteTextfile(r.textfile, identity); err != nil {
		log.Warn().Err(err).Msg("failed to write metrics textfile")
	}
}

// recordContext detaches from cancellation so an interrupted run is still
// recorded.
func recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

type identityKey struct{}

// IdentityFromContext returns the lock identity of the action running
// under ctx.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey{}).(string)
	return identity, ok
}

// ExitCode maps an action error to a process exit code. Errors carrying
// their own positive exit code (such as *exec.ExitError) keep it.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		if code := coded.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
