//go:build resilience

package resilience

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"
)

// lockrunBin is the path to the built lockrun binary, set by buildLockrun.
var (
	lockrunBin     string
	lockrunBinOnce sync.Once
	lockrunBinErr  error
)

// buildLockrun compiles the lockrun binary once per test process and returns its path.
func buildLockrun(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("resilience tests need a POSIX shell")
	}

	lockrunBinOnce.Do(func() {
		binDir, err := os.MkdirTemp("", "lockrun-test-bin-*")
		if err != nil {
			lockrunBinErr = err
			return
		}
		binPath := filepath.Join(binDir, "lockrun")

		cmd := exec.Command("go", "build", "-o", binPath, "./cmd/lockrun")
		cmd.Dir = findRepoRoot(t)
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			lockrunBinErr = err
			return
		}
		lockrunBin = binPath
	})

	if lockrunBinErr != nil {
		t.Fatalf("Failed to build lockrun binary: %v", lockrunBinErr)
	}
	return lockrunBin
}

// findRepoRoot walks up from the current directory to find the repo root (contains go.mod).
func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root (no go.mod)")
		}
		dir = parent
	}
}

// env isolates lockrun from the user's config and state.
type env struct {
	bin     string
	lockDir string
	vars    []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{bin: buildLockrun(t), lockDir: filepath.Join(root, "locks")}
	e.vars = append(os.Environ(),
		"XDG_CONFIG_HOME="+filepath.Join(root, "config"),
		"XDG_STATE_HOME="+filepath.Join(root, "state"),
		"LOCKRUN_DIR="+e.lockDir,
		"LOCKRUN_LOG_FORMAT=json",
	)
	return e
}

func (e *env) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.bin, args...)
	cmd.Env = e.vars
	return cmd
}

// run executes lockrun and returns stdout, stderr and the exit code.
// Commands are killed after 30s to prevent hangs.
func (e *env) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout, stderr lockedBuffer
	cmd := e.command(ctx, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), stderr.String(), 0
	case errors.As(err, &exitErr):
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	}
	t.Fatalf("lockrun %v: %v", args, err)
	return "", "", -1
}

// waitForFile polls until path exists.
func waitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
