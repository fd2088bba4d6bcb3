// Package history keeps a SQLite ledger of guarded runs: which identity ran,
// under which PID, how it ended, and which invocations were turned away
// because the lock was held.
package history

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the outcome recorded for a run.
type Status string

const (
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusDenied  Status = "denied"
)

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 20

// Fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Finish for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one ledger row.
type Run struct {
	ID         string     `json:"id"`
	Identity   string     `json:"identity"`
	PID        int        `json:"pid"`
	Status     Status     `json:"status"`
	HolderPID  int        `json:"holder_pid,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration is the wall time of a finished run, zero otherwise.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Filter narrows List results.
type Filter struct {
	Identity string
	Limit    int
}

// Store is the run ledger.
type Store struct {
	db  *safeDB
	now func() time.Time
}

// Open opens (creating if needed) the ledger at path. ":memory:" gives a
// private in-memory ledger.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return &Store{db: &safeDB{db: db}, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

func newRunID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// Start records a run that has just acquired its lock.
func (s *Store) Start(ctx context.Context, identity string, pid int) (string, error) {
	now := s.now().UTC()
	id := newRunID(now)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, identity, pid, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, identity, pid, string(StatusRunning), now.Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

// Finish records the outcome of a started run. A nil runErr with exit code
// zero is a success.
func (s *Store) Finish(ctx context.Context, id string, exitCode int, runErr error) error {
	status := StatusOK
	var errText sql.NullString
	if runErr != nil || exitCode != 0 {
		status = StatusFailed
	}
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, exit_code = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), exitCode, errText, s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Denied records an invocation that was turned away by a live holder.
func (s *Store) Denied(ctx context.Context, identity string, pid, holderPID int) (string, error) {
	now := s.now().UTC()
	id := newRunID(now)
	ts := now.Format(timeLayout)
	var holder sql.NullInt64
	if holderPID > 0 {
		holder = sql.NullInt64{Int64: int64(holderPID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, identity, pid, status, holder_pid, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, identity, pid, string(StatusDenied), holder, ts, ts)
	if err != nil {
		return "", fmt.Errorf("record denied run: %w", err)
	}
	return id, nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, identity, pid, status, holder_pid, exit_code, error, started_at, finished_at FROM runs`
	var args []any
	if f.Identity != "" {
		query += ` WHERE identity = ?`
		args = append(args, f.Identity)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run        Run
		status     string
		holder     sql.NullInt64
		exitCode   sql.NullInt64
		errText    sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := rows.Scan(&run.ID, &run.Identity, &run.PID, &status, &holder, &exitCode, &errText, &startedAt, &finishedAt); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Status = Status(status)
	run.HolderPID = int(holder.Int64)
	run.Error = errText.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at for run %s: %w", run.ID, err)
	}
	run.StartedAt = t
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parse finished_at for run %s: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	return run, nil
}

// Prune keeps the newest keep runs per identity and deletes the rest. It
// returns the number of deleted rows.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY identity ORDER BY started_at DESC, id DESC
				) AS rn
				FROM runs
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return n, nil
}
