package cli

import (
	"strings"
	"testing"
)

func TestListLocks(t *testing.T) {
	s := newTestSession(t, 100)
	writeMarker(t, s.Guard, "zeta-job", 100)
	writeMarker(t, s.Guard, "alpha-job", 200)

	result, err := ListLocks(s.Guard)
	if err != nil {
		t.Fatalf("ListLocks failed: %v", err)
	}
	if len(result.Locks) != 2 {
		t.Fatalf("expected 2 locks, got %d", len(result.Locks))
	}
	if result.Locks[0].Identity != "alpha-job" || result.Locks[0].State != StateStale {
		t.Errorf("unexpected first lock: %+v", result.Locks[0])
	}
	if result.Locks[1].Identity != "zeta-job" || result.Locks[1].State != StateLocked {
		t.Errorf("unexpected second lock: %+v", result.Locks[1])
	}

	out := FormatList(result)
	for _, w := range []string{"IDENTITY", "alpha-job", "stale", "zeta-job", "locked", "100"} {
		if !strings.Contains(out, w) {
			t.Errorf("FormatList missing %q:\n%s", w, out)
		}
	}
}

func TestListLocks_Empty(t *testing.T) {
	s := newTestSession(t)

	result, err := ListLocks(s.Guard)
	if err != nil {
		t.Fatalf("ListLocks failed: %v", err)
	}
	if result.Locks == nil || len(result.Locks) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", result.Locks)
	}
	if out := FormatList(result); !strings.HasPrefix(out, "No locks in ") {
		t.Errorf("unexpected output: %q", out)
	}
}
