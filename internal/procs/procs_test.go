package procs

import (
	"os"
	"testing"
)

func TestNew(t *testing.T) {
	for _, kind := range []string{"", KindTable, KindSignal} {
		o, err := New(kind)
		if err != nil {
			t.Fatalf("New(%q) failed: %v", kind, err)
		}
		if o == nil {
			t.Fatalf("New(%q) returned nil oracle", kind)
		}
	}

	if _, err := New("psychic"); err == nil {
		t.Fatal("expected error for unknown oracle kind")
	}
}

func TestStaticOracle(t *testing.T) {
	o := NewStaticOracle(10, 20)

	if alive, _ := o.IsAlive(10); !alive {
		t.Error("expected pid 10 alive")
	}
	if alive, _ := o.IsAlive(30); alive {
		t.Error("expected pid 30 dead")
	}
	if alive, _ := o.IsAlive(0); alive {
		t.Error("expected pid 0 dead")
	}
}

func TestOracleFunc(t *testing.T) {
	var seen int
	o := OracleFunc(func(pid int) (bool, error) {
		seen = pid
		return true, nil
	})
	if alive, err := o.IsAlive(os.Getpid()); err != nil || !alive {
		t.Fatalf("IsAlive = %v, %v", alive, err)
	}
	if seen != os.Getpid() {
		t.Fatalf("func saw pid %d", seen)
	}
}
