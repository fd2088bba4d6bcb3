package guard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/leonletto/lockrun/internal/procs"
)

// Strategy selects how a marker is claimed.
type Strategy string

const (
	// StrategyExclusive creates the marker with O_EXCL and relies on the
	// liveness oracle to recognise stale markers.
	StrategyExclusive Strategy = "exclusive"

	// StrategyFlock additionally holds an OS advisory lock on the marker
	// for as long as the lock is held. The OS drops it when the holder dies.
	StrategyFlock Strategy = "flock"
)

// Suffix is appended to the identity by the default filename mapping.
const Suffix = ".lock"

// DefaultMarkerGrace is how long an empty marker is assumed to belong to a
// holder that has created the file but not yet written its PID.
const DefaultMarkerGrace = 2 * time.Second

// Hooks receive guard events. Nil fields are skipped.
type Hooks struct {
	OnStale func(identity, path string, holderPID int)
}

// Guard grants at most one live holder per lock identity on this host.
// It is safe for concurrent use.
type Guard struct {
	dir      string
	filename func(identity string) string
	parse    func(name string) (string, bool)
	oracle   procs.Oracle
	log      zerolog.Logger
	strategy Strategy
	pid      int
	grace    time.Duration
	hooks    Hooks
	now      func() time.Time

	mu   sync.Mutex
	held map[string]*flock.Flock

	// judged runs after a marker is found stale and before it is removed.
	judged func(path string)
}

// Option configures a Guard.
type Option func(*Guard)

// WithDir sets the lock directory.
func WithDir(dir string) Option {
	return func(g *Guard) { g.dir = dir }
}

// WithFilename overrides the identity to filename mapping. parse is its
// inverse, used by List; it reports false for names that are not markers.
func WithFilename(format func(identity string) string, parse func(name string) (string, bool)) Option {
	return func(g *Guard) {
		g.filename = format
		g.parse = parse
	}
}

// WithOracle sets the process liveness oracle.
func WithOracle(o procs.Oracle) Option {
	return func(g *Guard) { g.oracle = o }
}

// WithLogger sets the logger used for stale-lock warnings.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Guard) { g.log = l.With().Str("component", "guard").Logger() }
}

// WithStrategy selects the claim strategy.
func WithStrategy(s Strategy) Option {
	return func(g *Guard) { g.strategy = s }
}

// WithPID sets the PID written into markers. Defaults to os.Getpid().
func WithPID(pid int) Option {
	return func(g *Guard) { g.pid = pid }
}

// WithMarkerGrace overrides DefaultMarkerGrace.
func WithMarkerGrace(d time.Duration) Option {
	return func(g *Guard) { g.grace = d }
}

// WithHooks registers event callbacks.
func WithHooks(h Hooks) Option {
	return func(g *Guard) { g.hooks = h }
}

// New builds a Guard. The lock directory defaults to os.TempDir().
func New(opts ...Option) (*Guard, error) {
	g := &Guard{
		dir:      os.TempDir(),
		filename: DefaultFilename,
		parse:    ParseDefaultFilename,
		oracle:   procs.NewTableOracle(),
		log:      zerolog.Nop(),
		strategy: StrategyExclusive,
		pid:      os.Getpid(),
		grace:    DefaultMarkerGrace,
		now:      time.Now,
		held:     make(map[string]*flock.Flock),
	}
	for _, opt := range opts {
		opt(g)
	}

	switch g.strategy {
	case StrategyExclusive, StrategyFlock:
	default:
		return nil, fmt.Errorf("unknown lock strategy %q", g.strategy)
	}
	if g.dir == "" {
		return nil, errors.New("lock directory not set")
	}
	if g.pid <= 0 {
		return nil, fmt.Errorf("invalid holder pid %d", g.pid)
	}
	if g.oracle == nil {
		return nil, errors.New("liveness oracle not set")
	}
	if g.filename == nil || g.parse == nil {
		return nil, errors.New("filename mapping needs both format and parse functions")
	}
	return g, nil
}

// DefaultFilename maps an identity to "<identity>.lock".
func DefaultFilename(identity string) string {
	return identity + Suffix
}

// ParseDefaultFilename is the inverse of DefaultFilename.
func ParseDefaultFilename(name string) (string, bool) {
	identity, ok := strings.CutSuffix(name, Suffix)
	return identity, ok && identity != ""
}

// Identity builds the conventional lock identity "<command>-<action>",
// lower-cased.
func Identity(command, action string) string {
	return strings.ToLower(command + "-" + action)
}

// ValidateIdentity rejects identities that cannot name a file inside the
// lock directory.
func ValidateIdentity(identity string) error {
	switch {
	case identity == "", identity == ".", identity == "..":
		return fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	case strings.ContainsAny(identity, `/\`), strings.ContainsRune(identity, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidIdentity, identity)
	}
	return nil
}

// Dir returns the lock directory.
func (g *Guard) Dir() string {
	return g.dir
}

// PID returns the PID this guard writes into markers.
func (g *Guard) PID() int {
	return g.pid
}

// MarkerPath returns the marker location for identity.
func (g *Guard) MarkerPath(identity string) string {
	return filepath.Join(g.dir, g.filename(identity))
}

// TryAcquire claims the lock for identity. It returns true when the caller
// now holds the lock, false when a live process holds it. A stale marker is
// removed and replaced. Filesystem or liveness failures are returned as
// errors and the lock is not held.
func (g *Guard) TryAcquire(identity string) (bool, error) {
	if err := ValidateIdentity(identity); err != nil {
		return false, err
	}
	if err := os.MkdirAll(g.dir, 0700); err != nil {
		return false, &MarkerError{Op: "mkdir", Path: g.dir, Err: err}
	}

	path := g.MarkerPath(identity)
	if g.strategy == StrategyFlock {
		return g.tryFlock(identity, path)
	}
	return g.tryExclusive(identity, path)
}

// tryExclusive makes at most two creation attempts: the first, and one
// after discarding a stale or vanished marker. Losing the second attempt
// means another process claimed the lock in between.
func (g *Guard) tryExclusive(identity, path string) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		err := createMarker(path, g.pid)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, err
		}

		stale, holder, info, err := g.inspectHolder(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return false, err
		}
		if !stale {
			return false, nil
		}

		// Only discard the marker we judged. A replacement written since
		// then belongs to whoever won it.
		if g.judged != nil {
			g.judged(path)
		}
		same, err := unchanged(path, info, holder)
		if err != nil {
			return false, err
		}
		if !same {
			continue
		}

		g.log.Warn().Str("identity", identity).Str("path", path).Int("holder_pid", holder).
			Msgf("removing stale lock file %s", path)
		if g.hooks.OnStale != nil {
			g.hooks.OnStale(identity, path, holder)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, &MarkerError{Op: "remove", Path: path, Err: err}
		}
	}
	return false, nil
}

// inspectHolder reads the marker at path and decides whether its holder is
// gone. Malformed content counts as stale, except for an empty file younger
// than the grace period, which is a holder still writing its PID.
func (g *Guard) inspectHolder(path string) (stale bool, holder int, info fs.FileInfo, err error) {
	holder, info, err = readMarker(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, 0, nil, err
	case errors.Is(err, errMalformed):
		if emptyFile(info) && g.now().Sub(info.ModTime()) < g.grace {
			return false, 0, info, nil
		}
		return true, 0, info, nil
	case err != nil:
		return false, 0, nil, &MarkerError{Op: "read", Path: path, Err: err}
	}

	alive, err := g.isAlive(holder)
	if err != nil {
		return false, holder, info, fmt.Errorf("check lock holder %d: %w", holder, err)
	}
	return !alive, holder, info, nil
}

// unchanged reports whether the marker at path is still the file described
// by info and still records holder.
func unchanged(path string, info fs.FileInfo, holder int) (bool, error) {
	pid, current, err := readMarker(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case errors.Is(err, errMalformed):
	case err != nil:
		return false, &MarkerError{Op: "read", Path: path, Err: err}
	}
	return os.SameFile(info, current) && pid == holder && current.ModTime().Equal(info.ModTime()), nil
}

func (g *Guard) isAlive(pid int) (bool, error) {
	if pid == g.pid {
		return true, nil
	}
	return g.oracle.IsAlive(pid)
}

// Release removes the marker for identity. A missing marker is not an
// error. A marker recording a different, well-formed PID is left alone and
// reported with ErrNotHolder.
func (g *Guard) Release(identity string) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	path := g.MarkerPath(identity)

	g.mu.Lock()
	fl := g.held[identity]
	delete(g.held, identity)
	g.mu.Unlock()

	var err error
	pid, _, rerr := readMarker(path)
	switch {
	case errors.Is(rerr, fs.ErrNotExist):
	case rerr == nil && pid != g.pid:
		err = &MarkerError{Op: "remove", Path: path, Err: fmt.Errorf("%w (pid %d)", ErrNotHolder, pid)}
	default:
		// Remove before unlocking so no other process can lock the inode
		// that is about to be unlinked.
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = &MarkerError{Op: "remove", Path: path, Err: rmErr}
		}
	}

	if fl != nil {
		if uerr := fl.Unlock(); uerr != nil && err == nil {
			err = &MarkerError{Op: "unlock", Path: path, Err: uerr}
		}
	}
	return err
}

// Do runs fn while holding the lock for identity. It returns false without
// calling fn when the lock is held elsewhere. The lock is released on every
// exit path of fn, including panics; a release failure is logged and never
// replaces fn's own result.
func (g *Guard) Do(ctx context.Context, identity string, fn func(context.Context) error) (bool, error) {
	ok, err := g.TryAcquire(identity)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		if rerr := g.Release(identity); rerr != nil {
			g.log.Warn().Err(rerr).Str("identity", identity).Msg("failed to release lock")
		}
	}()
	return true, fn(ctx)
}

// Inspect reports the current state of the marker for identity. A missing
// marker returns an error matching fs.ErrNotExist.
func (g *Guard) Inspect(identity string) (Marker, error) {
	if err := ValidateIdentity(identity); err != nil {
		return Marker{}, err
	}
	return g.inspectPath(identity, g.MarkerPath(identity))
}

func (g *Guard) inspectPath(identity, path string) (Marker, error) {
	m := Marker{Identity: identity, Path: path}

	pid, info, err := readMarker(path)
	if info != nil {
		m.ModTime = info.ModTime()
	}
	switch {
	case errors.Is(err, errMalformed):
		m.Malformed = true
		return m, nil
	case err != nil:
		return m, err
	}

	m.PID = pid
	alive, err := g.isAlive(pid)
	if err != nil {
		return m, fmt.Errorf("check lock holder %d: %w", pid, err)
	}
	m.Live = alive
	return m, nil
}

// List returns every marker in the lock directory recognised by the
// filename mapping, sorted by name. A missing directory yields no markers.
func (g *Guard) List() ([]Marker, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock directory: %w", err)
	}

	var markers []Marker
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		identity, ok := g.parse(e.Name())
		if !ok {
			continue
		}
		m, err := g.inspectPath(identity, filepath.Join(g.dir, e.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, nil
}

// RemoveStale deletes the marker for identity only if its holder is gone.
// It returns false without error when there is no marker, ErrNotStale when
// the holder is alive, and ErrMarkerChanged when the marker was replaced
// while it was being judged.
func (g *Guard) RemoveStale(identity string) (bool, error) {
	if err := ValidateIdentity(identity); err != nil {
		return false, err
	}
	path := g.MarkerPath(identity)

	stale, holder, info, err := g.inspectHolder(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !stale {
		return false, fmt.Errorf("%w (pid %d)", ErrNotStale, holder)
	}

	if g.judged != nil {
		g.judged(path)
	}
	same, err := unchanged(path, info, holder)
	if err != nil {
		return false, err
	}
	if !same {
		return false, ErrMarkerChanged
	}

	g.log.Warn().Str("identity", identity).Str("path", path).Int("holder_pid", holder).
		Msgf("removing stale lock file %s", path)
	if g.hooks.OnStale != nil {
		g.hooks.OnStale(identity, path, holder)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &MarkerError{Op: "remove", Path: path, Err: err}
	}
	return true, nil
}

// ForceRemove deletes the marker for identity regardless of its holder.
// It does not release a flock held by another process.
func (g *Guard) ForceRemove(identity string) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	path := g.MarkerPath(identity)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &MarkerError{Op: "remove", Path: path, Err: err}
	}
	return nil
}
