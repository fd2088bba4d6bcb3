package paths

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLockDir_RuntimeDir(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	got := LockDir()
	expected := filepath.Join(runtimeDir, "lockrun")
	if got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestLockDir_TempFallback(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	got := LockDir()
	if filepath.Dir(got) != filepath.Clean(os.TempDir()) {
		t.Errorf("expected lock dir under %s, got %s", os.TempDir(), got)
	}
	if !strings.HasSuffix(got, "lockrun-"+strconv.Itoa(os.Getuid())) {
		t.Errorf("expected uid suffix, got %s", got)
	}
}

func TestLockDir_IgnoresRelativeRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "relative/run")

	if got := LockDir(); strings.HasPrefix(got, "relative") {
		t.Errorf("relative XDG_RUNTIME_DIR should be ignored, got %s", got)
	}
}

func TestConfigPath(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath failed: %v", err)
	}
	expected := filepath.Join(configHome, "lockrun", "config.json")
	if got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestHistoryPath(t *testing.T) {
	stateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateHome)

	got, err := HistoryPath()
	if err != nil {
		t.Fatalf("HistoryPath failed: %v", err)
	}
	expected := filepath.Join(stateHome, "lockrun", "history.db")
	if got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}

func TestStateDir_HomeFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	got, err := StateDir()
	if err != nil {
		t.Fatalf("StateDir failed: %v", err)
	}
	expected := filepath.Join(home, ".local", "state", "lockrun")
	if got != expected {
		t.Errorf("expected %s, got %s", expected, got)
	}
}
