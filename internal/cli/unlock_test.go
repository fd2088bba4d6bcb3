package cli

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/leonletto/lockrun/internal/guard"
)

func TestUnlock_Stale(t *testing.T) {
	s := newTestSession(t)
	writeMarker(t, s.Guard, "job", 4242)

	result, err := Unlock(s.Guard, "job", false)
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if !result.Removed || result.WasLive {
		t.Errorf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(s.Guard.MarkerPath("job")); !os.IsNotExist(err) {
		t.Error("marker should be gone")
	}
	if out := FormatUnlock(result); !strings.Contains(out, "Removed stale lock job (PID 4242)") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestUnlock_LiveNeedsForce(t *testing.T) {
	s := newTestSession(t, 4242)
	writeMarker(t, s.Guard, "job", 4242)

	_, err := Unlock(s.Guard, "job", false)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if _, err := os.Stat(s.Guard.MarkerPath("job")); err != nil {
		t.Fatalf("marker should still exist: %v", err)
	}

	result, err := Unlock(s.Guard, "job", true)
	if err != nil {
		t.Fatalf("forced Unlock failed: %v", err)
	}
	if !result.Removed || !result.WasLive {
		t.Errorf("unexpected result: %+v", result)
	}
	if out := FormatUnlock(result); !strings.Contains(out, "still running") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestUnlock_NotLocked(t *testing.T) {
	s := newTestSession(t)

	result, err := Unlock(s.Guard, "job", false)
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if result.Removed {
		t.Error("nothing should have been removed")
	}
	if out := FormatUnlock(result); out != "job is not locked\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

// swapOracle reports every PID dead except those in live, and on its first
// query rewrites the marker at path to record next.
type swapOracle struct {
	path    string
	next    int
	live    map[int]bool
	swapped bool
}

func (o *swapOracle) IsAlive(pid int) (bool, error) {
	if !o.swapped {
		o.swapped = true
		tmp := o.path + ".tmp"
		if err := os.WriteFile(tmp, []byte(strconv.Itoa(o.next)+"\n"), 0600); err != nil {
			return false, err
		}
		if err := os.Rename(tmp, o.path); err != nil {
			return false, err
		}
	}
	return o.live[pid], nil
}

func TestUnlock_KeepsMarkerRewrittenByLiveHolder(t *testing.T) {
	s := newTestSession(t)
	writeMarker(t, s.Guard, "job", 4242)

	oracle := &swapOracle{path: s.Guard.MarkerPath("job"), next: 5000, live: map[int]bool{5000: true}}
	g, err := guard.New(guard.WithDir(s.Guard.Dir()), guard.WithOracle(oracle))
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}

	_, err = Unlock(g, "job", false)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	data, err := os.ReadFile(g.MarkerPath("job"))
	if err != nil {
		t.Fatalf("marker should still exist: %v", err)
	}
	if string(data) != "5000\n" {
		t.Fatalf("marker content = %q, want the new holder", data)
	}
}
