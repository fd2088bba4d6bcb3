package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const appName = "lockrun"

// LockDir returns the default lock directory.
//
// Resolution order:
// 1. $XDG_RUNTIME_DIR/lockrun (per-user runtime dir, cleared at logout/boot)
// 2. <os.TempDir()>/lockrun-<uid>
//
// The uid suffix keeps users on a shared /tmp from colliding.
func LockDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(os.Getuid()))
}

// ConfigPath returns the default config file location:
// $XDG_CONFIG_HOME/lockrun/config.json, falling back to the OS user
// config directory.
func ConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, appName, "config.json"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, appName, "config.json"), nil
}

// StateDir returns the directory for persistent state such as the run
// history: $XDG_STATE_HOME/lockrun or ~/.local/state/lockrun.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", appName), nil
}

// HistoryPath returns the default run history database path.
func HistoryPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
