package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leonletto/lockrun/internal/config"
)

// isolate points every XDG location at fresh temp dirs and clears
// LOCKRUN_* variables so the host environment cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_RUNTIME_DIR", filepath.Join(root, "run"))
	for _, key := range []string{
		"LOCKRUN_DIR", "LOCKRUN_STRATEGY", "LOCKRUN_LIVENESS", "LOCKRUN_LOG_LEVEL",
		"LOCKRUN_LOG_FORMAT", "LOCKRUN_HISTORY", "LOCKRUN_HISTORY_DB",
		"LOCKRUN_HISTORY_KEEP", "LOCKRUN_METRICS_TEXTFILE",
	} {
		t.Setenv(key, "")
	}
	return root
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	root := isolate(t)

	cfg, err := config.Load("", config.Overrides{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LockDir != filepath.Join(root, "run", "lockrun") {
		t.Errorf("unexpected lock dir %s", cfg.LockDir)
	}
	if cfg.Strategy != "exclusive" {
		t.Errorf("Expected strategy 'exclusive', got '%s'", cfg.Strategy)
	}
	if cfg.Liveness != "table" {
		t.Errorf("Expected liveness 'table', got '%s'", cfg.Liveness)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log level 'warn', got '%s'", cfg.LogLevel)
	}
	if !cfg.History {
		t.Error("Expected history to be enabled by default")
	}
	if cfg.HistoryDB != filepath.Join(root, "state", "lockrun", "history.db") {
		t.Errorf("unexpected history db %s", cfg.HistoryDB)
	}
	if cfg.HistoryKeep != config.DefaultHistoryKeep {
		t.Errorf("Expected history keep %d, got %d", config.DefaultHistoryKeep, cfg.HistoryKeep)
	}
	if cfg.Path != "" {
		t.Errorf("Expected no config file, got %s", cfg.Path)
	}
}

func TestLoad_FromDefaultFile(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "config", "lockrun", "config.json")
	writeConfig(t, path, `{"lock_dir": "/var/lock/jobs", "strategy": "flock", "history": false}`)

	cfg, err := config.Load("", config.Overrides{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LockDir != "/var/lock/jobs" {
		t.Errorf("Expected lock dir from file, got %s", cfg.LockDir)
	}
	if cfg.Strategy != "flock" {
		t.Errorf("Expected strategy 'flock', got '%s'", cfg.Strategy)
	}
	if cfg.History {
		t.Error("Expected history disabled by file")
	}
	// Keys absent from the file keep their defaults.
	if cfg.Liveness != "table" {
		t.Errorf("Expected default liveness, got '%s'", cfg.Liveness)
	}
	if cfg.Path != path {
		t.Errorf("Expected Path %s, got %s", path, cfg.Path)
	}
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	root := isolate(t)

	_, err := config.Load(filepath.Join(root, "nope.json"), config.Overrides{})
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "bad.json")
	writeConfig(t, path, `{"lock_dir": `)

	_, err := config.Load(path, config.Overrides{})
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Fatalf("Expected parse error, got %v", err)
	}
}

func TestLoad_Precedence(t *testing.T) {
	root := isolate(t)
	path := filepath.Join(root, "custom.json")
	writeConfig(t, path, `{"lock_dir": "/from/file", "liveness": "signal", "log_level": "info"}`)

	t.Setenv("LOCKRUN_DIR", "/from/env")
	t.Setenv("LOCKRUN_LOG_LEVEL", "debug")
	t.Setenv("LOCKRUN_HISTORY_KEEP", "7")

	cfg, err := config.Load(path, config.Overrides{LogLevel: "trace", NoHistory: true})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LockDir != "/from/env" {
		t.Errorf("env should override file, got %s", cfg.LockDir)
	}
	if cfg.Liveness != "signal" {
		t.Errorf("file should override default, got %s", cfg.Liveness)
	}
	if cfg.LogLevel != "trace" {
		t.Errorf("flag should override env, got %s", cfg.LogLevel)
	}
	if cfg.HistoryKeep != 7 {
		t.Errorf("Expected history keep 7, got %d", cfg.HistoryKeep)
	}
	if cfg.History {
		t.Error("--no-history should disable history")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := map[string]struct {
		key, value string
	}{
		"history bool": {key: "LOCKRUN_HISTORY", value: "maybe"},
		"history keep": {key: "LOCKRUN_HISTORY_KEEP", value: "lots"},
		"strategy":     {key: "LOCKRUN_STRATEGY", value: "hope"},
		"liveness":     {key: "LOCKRUN_LIVENESS", value: "vibes"},
		"log level":    {key: "LOCKRUN_LOG_LEVEL", value: "shouting"},
		"log format":   {key: "LOCKRUN_LOG_FORMAT", value: "xml"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)
			if _, err := config.Load("", config.Overrides{}); err == nil {
				t.Fatalf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	isolate(t)

	cfg := config.Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.LockDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty lock dir")
	}

	cfg = config.Defaults()
	cfg.HistoryDB = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for enabled history without db path")
	}
	cfg.History = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled history needs no db path: %v", err)
	}

	cfg = config.Defaults()
	cfg.HistoryKeep = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative history keep")
	}
}
