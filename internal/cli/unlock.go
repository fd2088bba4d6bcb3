package cli

import (
	"errors"
	"fmt"

	"github.com/leonletto/lockrun/internal/guard"
)

// ErrLockHeld is returned by Unlock for a live holder without force.
var ErrLockHeld = errors.New("lock is held by a running process")

// UnlockResult describes an unlock.
type UnlockResult struct {
	Identity string `json:"identity"`
	Removed  bool   `json:"removed"`
	PID      int    `json:"pid,omitempty"`
	WasLive  bool   `json:"was_live,omitempty"`
}

// Unlock removes the marker for identity. Without force only a marker whose
// holder is gone is removed, and only if it is still the marker that was
// checked.
func Unlock(g *guard.Guard, identity string, force bool) (*UnlockResult, error) {
	status, err := LockStatus(g, identity)
	if err != nil {
		return nil, err
	}
	result := &UnlockResult{Identity: identity, PID: status.PID, WasLive: status.Locked()}
	if status.State == StateUnlocked {
		return result, nil
	}
	if force {
		if err := g.ForceRemove(identity); err != nil {
			return result, err
		}
		result.Removed = true
		return result, nil
	}

	// The holder is judged again at removal; a marker rewritten by a live
	// process since the status read is kept.
	removed, err := g.RemoveStale(identity)
	if errors.Is(err, guard.ErrNotStale) {
		result.WasLive = true
		return result, fmt.Errorf("%w: %v; use --force to remove it anyway", ErrLockHeld, err)
	}
	if err != nil {
		return result, err
	}
	result.Removed = removed
	return result, nil
}

// FormatUnlock formats an unlock result for human-readable display.
func FormatUnlock(result *UnlockResult) string {
	switch {
	case !result.Removed:
		return fmt.Sprintf("%s is not locked\n", result.Identity)
	case result.WasLive:
		return fmt.Sprintf("Removed lock %s (PID %d is still running)\n", result.Identity, result.PID)
	case result.PID > 0:
		return fmt.Sprintf("Removed stale lock %s (PID %d)\n", result.Identity, result.PID)
	}
	return fmt.Sprintf("Removed stale lock %s\n", result.Identity)
}
