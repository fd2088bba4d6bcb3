package cli

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/leonletto/lockrun/internal/config"
	"github.com/leonletto/lockrun/internal/guard"
	"github.com/leonletto/lockrun/internal/procs"
)

// newTestSession returns a session rooted in a temp dir whose guard treats
// only the given PIDs (and its own) as alive.
func newTestSession(t *testing.T, live ...int) *Session {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		LockDir:     filepath.Join(dir, "locks"),
		Strategy:    string(guard.StrategyExclusive),
		Liveness:    procs.KindTable,
		LogLevel:    "warn",
		LogFormat:   "json",
		History:     true,
		HistoryDB:   filepath.Join(dir, "state", "history.db"),
		HistoryKeep: config.DefaultHistoryKeep,
	}
	s, err := NewSession(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	g, err := guard.New(guard.WithDir(cfg.LockDir), guard.WithOracle(procs.NewStaticOracle(live...)))
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}
	s.Guard = g
	return s
}

func writeMarker(t *testing.T, g *guard.Guard, identity string, pid int) {
	t.Helper()
	if err := os.MkdirAll(g.Dir(), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(g.MarkerPath(identity), []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
}
