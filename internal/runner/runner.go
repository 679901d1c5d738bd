// Package runner executes trigger events against their scripts: it takes
// the per-script lock, records the run, invokes the executor and finalizes
// the run row exactly once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/scripter/internal/executor"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/trigger"
)

// ErrLockHeld reports that the script's lock is taken, so this event was
// skipped rather than run concurrently.
var ErrLockHeld = errors.New("script lock held")

// Result is the outcome of one dispatched event.
//
// ExecErr distinguishes a process that ran and exited (nil, whatever the
// exit code) from one the executor could not run to completion: it carries
// executor.ErrTimeout when the deadline killed the process, or the spawn
// error when nothing started. Either way the run row is already finalized
// as failed.
type Result struct {
	RunID   int64
	Status  string
	ExecErr error
}

// Service turns trigger events into runs. One Service is shared by the
// scheduler loop, the webhook server and the manual-run CLI path, so every
// entry point goes through the same lock and run-record discipline.
type Service struct {
	store   *store.Store
	owner   string
	timeout time.Duration

	// OnFinished, when set, is called after the run row is finalized and
	// before the lock is released. The scheduler uses it to mark event-bus
	// deliveries processed only once their run actually completed.
	OnFinished func(ev trigger.Event, status string, runID int64)
}

// New creates a Service. owner identifies this process in lock rows
// ("<host>:<pid>"); a non-positive timeout falls back to the executor
// default.
func New(st *store.Store, owner string, timeout time.Duration) *Service {
	return &Service{store: st, owner: owner, timeout: timeout}
}

// Execute runs the script named by ev under its lock.
//
// A failed run is not an error: the caller gets a Result with status
// "failed" and a nil error. Execute returns an error only when the run
// could not happen at all - unknown script (store.ErrNotFound), lock
// already held (ErrLockHeld), or a store failure.
func (s *Service) Execute(ctx context.Context, ev trigger.Event) (*Result, error) {
	script, err := s.store.GetScript(ctx, ev.ScriptID)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", ev.TriggerID, err)
	}

	lockKey := fmt.Sprintf("script:%d", script.ID)
	ok, err := s.store.TryAcquireLock(ctx, lockKey, s.owner)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", ev.TriggerID, err)
	}
	if !ok {
		slog.Info("runner: skipped, lock held", "script", script.Name, "trigger", ev.TriggerID)
		return nil, fmt.Errorf("script %q: %w", script.Name, ErrLockHeld)
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), lockKey, s.owner); err != nil {
			slog.Error("runner: release lock failed", "key", lockKey, "error", err)
		}
	}()

	runID, err := s.store.CreateRun(ctx, script.ID, ev.TriggerID)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", ev.TriggerID, err)
	}

	slog.Info("runner: started", "script", script.Name, "run", runID, "trigger", ev.TriggerID)

	res, execErr := executor.Run(ctx, script.Command, script.WorkingDir, s.timeout)

	var (
		status   string
		exitCode *int
		stdout   string
		stderr   string
	)
	switch {
	case execErr == nil:
		stdout, stderr = res.Stdout, res.Stderr
		exitCode = &res.ExitCode
		if res.ExitCode == 0 {
			status = store.RunSuccess
		} else {
			status = store.RunFailed
		}
	case errors.Is(execErr, executor.ErrTimeout):
		// No exit code: the process was killed, it did not exit.
		status = store.RunFailed
		stdout, stderr = res.Stdout, appendLine(res.Stderr, fmt.Sprintf("timeout: %v", execErr))
	default:
		// Spawn failure: nothing ran, nothing was captured.
		status = store.RunFailed
		stderr = fmt.Sprintf("spawn: %v", execErr)
	}

	if err := s.store.FinishRun(context.WithoutCancel(ctx), runID, status, exitCode, stdout, stderr); err != nil {
		return nil, fmt.Errorf("execute %s: %w", ev.TriggerID, err)
	}

	slog.Info("runner: finished", "script", script.Name, "run", runID, "status", status)

	if s.OnFinished != nil {
		s.OnFinished(ev, status, runID)
	}
	return &Result{RunID: runID, Status: status, ExecErr: execErr}, nil
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}
