package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// killDelay is how long a child gets to exit after being interrupted.
const killDelay = 10 * time.Second

// Stdio wires a child process to the caller's streams.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// ExecAction returns an Action that runs argv as a child process. On
// cancellation the child is interrupted, then killed after killDelay. When
// run by a Runner the child sees LOCKRUN_IDENTITY in its environment.
func ExecAction(command, name string, argv []string, stdio Stdio) Action {
	return Action{Command: command, Name: name, Run: execRun(argv, stdio)}
}

func execRun(argv []string, stdio Stdio) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if len(argv) == 0 {
			return errors.New("no command to run")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // G204 - running the user's command is the point
		cmd.Stdin = stdio.In
		cmd.Stdout = stdio.Out
		cmd.Stderr = stdio.Err
		cmd.Env = os.Environ()
		if identity, ok := IdentityFromContext(ctx); ok {
			cmd.Env = append(cmd.Env, "LOCKRUN_IDENTITY="+identity)
		}
		cmd.Cancel = func() error {
			return cmd.Process.Signal(os.Interrupt)
		}
		cmd.WaitDelay = killDelay
		return cmd.Run()
	}
}
