package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/leonletto/lockrun/internal/guard"
)

// Lock states reported by status and list.
const (
	StateUnlocked  = "unlocked"
	StateLocked    = "locked"
	StateStale     = "stale"
	StateMalformed = "malformed"
)

// LockStatusResult describes one lock marker.
type LockStatusResult struct {
	Identity string `json:"identity"`
	State    string `json:"state"`
	PID      int    `json:"pid,omitempty"`
	Path     string `json:"path"`
	Age      string `json:"age,omitempty"`
}

// Locked reports whether a live process holds the lock.
func (r *LockStatusResult) Locked() bool {
	return r.State == StateLocked
}

// LockStatus inspects the marker for identity.
func LockStatus(g *guard.Guard, identity string) (*LockStatusResult, error) {
	m, err := g.Inspect(identity)
	if errors.Is(err, fs.ErrNotExist) {
		return &LockStatusResult{Identity: identity, State: StateUnlocked, Path: g.MarkerPath(identity)}, nil
	}
	if err != nil {
		return nil, err
	}
	return statusFromMarker(m, time.Now()), nil
}

func statusFromMarker(m guard.Marker, now time.Time) *LockStatusResult {
	r := &LockStatusResult{Identity: m.Identity, PID: m.PID, Path: m.Path}
	switch {
	case m.Malformed:
		r.State = StateMalformed
	case m.Live:
		r.State = StateLocked
	default:
		r.State = StateStale
	}
	if !m.ModTime.IsZero() {
		r.Age = formatDuration(now.Sub(m.ModTime))
	}
	return r
}

// FormatLockStatus formats a status result for human-readable display.
func FormatLockStatus(result *LockStatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lock:     %s\n", result.Identity)
	switch result.State {
	case StateLocked:
		fmt.Fprintf(&b, "State:    locked (PID %d)\n", result.PID)
	case StateStale:
		fmt.Fprintf(&b, "State:    stale (PID %d not running)\n", result.PID)
	case StateMalformed:
		b.WriteString("State:    stale (unreadable PID)\n")
	default:
		b.WriteString("State:    unlocked\n")
	}
	if result.State != StateUnlocked {
		fmt.Fprintf(&b, "File:     %s\n", result.Path)
	}
	if result.Age != "" {
		fmt.Fprintf(&b, "Age:      %s\n", result.Age)
	}
	return b.String()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		if minutes > 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}
