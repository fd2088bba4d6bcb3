package guard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gofrs/flock"
)

// tryFlock claims identity by taking a non-blocking exclusive OS lock on the
// marker. The lock lives as long as the descriptor, so a holder that dies
// without releasing never blocks later callers.
func (g *Guard) tryFlock(identity, path string) (bool, error) {
	g.mu.Lock()
	_, mine := g.held[identity]
	g.mu.Unlock()
	if mine {
		return false, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		fl := flock.New(path)
		locked, err := fl.TryLock()
		if err != nil {
			return false, &MarkerError{Op: "lock", Path: path, Err: err}
		}
		if !locked {
			return false, nil
		}

		// A releasing holder unlinks the marker while still locked. If we
		// locked that unlinked inode, start over on the new path.
		current, err := lockedCurrentFile(fl, path)
		if err != nil {
			_ = fl.Unlock()
			return false, err
		}
		if !current {
			_ = fl.Unlock()
			continue
		}

		// Holding the OS lock proves no flock holder exists, but a marker
		// written without flock by a live process is still honoured.
		if prev, _, err := readMarker(path); err == nil {
			alive, err := g.isAlive(prev)
			if err != nil {
				_ = fl.Unlock()
				return false, fmt.Errorf("check lock holder %d: %w", prev, err)
			}
			if alive {
				_ = fl.Unlock()
				return false, nil
			}
			g.log.Warn().Str("identity", identity).Str("path", path).Int("holder_pid", prev).
				Msgf("removing stale lock file %s", path)
			if g.hooks.OnStale != nil {
				g.hooks.OnStale(identity, path, prev)
			}
		}

		if err := os.WriteFile(path, markerContent(g.pid), 0600); err != nil {
			_ = fl.Unlock()
			return false, &MarkerError{Op: "write", Path: path, Err: err}
		}

		g.mu.Lock()
		g.held[identity] = fl
		g.mu.Unlock()
		return true, nil
	}
	return false, nil
}

// lockedCurrentFile reports whether the locked descriptor still refers to
// the file at path.
func lockedCurrentFile(fl *flock.Flock, path string) (bool, error) {
	held, err := fl.Stat()
	if err != nil {
		return false, &MarkerError{Op: "lock", Path: path, Err: err}
	}
	onDisk, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &MarkerError{Op: "read", Path: path, Err: err}
	}
	return os.SameFile(held, onDisk), nil
}
