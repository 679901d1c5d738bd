// Package executor spawns shell processes for scripts. It knows nothing
// about the store; callers persist results.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultTimeout bounds a run when the caller does not specify one.
const DefaultTimeout = 60 * time.Second

// ErrTimeout reports that the wall-clock timeout elapsed and the process
// tree was killed.
var ErrTimeout = errors.New("command timed out")

// Result carries the captured outcome of one process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Run executes command through the shell with cwd as working directory,
// capturing full stdout and stderr. If timeout elapses the whole process
// group is killed and the result comes back with TimedOut set alongside
// ErrTimeout. A non-zero exit is not an error here - it is data for the
// run record.
func Run(ctx context.Context, command, cwd string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = cwd

	// Run the shell in its own process group so a timeout kills the whole
	// tree, not just the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		slog.Warn("executor: timed out", "cmd", preview(command), "timeout", timeout)
		res.TimedOut = true
		res.ExitCode = -1
		return res, ErrTimeout
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			slog.Debug("executor: non-zero exit", "cmd", preview(command), "exitCode", res.ExitCode, "elapsed", elapsed)
			return res, nil
		}
		// Spawn failure (shell missing, bad cwd, ...): no exit code exists.
		return nil, fmt.Errorf("exec failed: %w", err)
	}

	slog.Debug("executor: completed", "cmd", preview(command), "elapsed", elapsed,
		"stdoutLen", stdout.Len(), "stderrLen", stderr.Len())
	return res, nil
}

// preview flattens a command to a short single line for log fields.
func preview(command string) string {
	p := strings.ReplaceAll(command, "\n", " ")
	p = strings.ReplaceAll(p, "\r", "")
	if len(p) > 50 {
		p = p[:50] + "..."
	}
	return p
}
