package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scripter/internal/executor"
	"github.com/roach88/scripter/internal/store"
	"github.com/roach88/scripter/internal/trigger"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExecute_SuccessPersistsRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "hello", "echo hi", "")
	require.NoError(t, err)

	svc := New(st, "host:1", 0)
	res, err := svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, res.Status)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, "hi\n", run.Stdout)
	require.NotNil(t, run.ExitCode)
	assert.Equal(t, 0, *run.ExitCode)
	assert.Equal(t, "manual", run.Trigger)
	assert.NotEmpty(t, run.FinishedAt)
}

func TestExecute_NonZeroExitIsFailedNotError(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "boom", "echo oops >&2; exit 3", "")
	require.NoError(t, err)

	svc := New(st, "host:1", 0)
	res, err := svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, res.Status)
	assert.NoError(t, res.ExecErr, "the process ran and exited; the code is data")

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.ExitCode)
	assert.Equal(t, 3, *run.ExitCode)
	assert.Equal(t, "oops\n", run.Stderr)
}

func TestExecute_TimeoutIsFailedWithoutExitCode(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "slow", "sleep 5", "")
	require.NoError(t, err)

	svc := New(st, "host:1", 200*time.Millisecond)
	res, err := svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, res.Status)
	assert.ErrorIs(t, res.ExecErr, executor.ErrTimeout)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Nil(t, run.ExitCode, "a killed process has no exit code")
	assert.Contains(t, run.Stderr, "timeout")
}

func TestExecute_SpawnFailureIsFailed(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "badcwd", "echo hi", "/nonexistent/dir")
	require.NoError(t, err)

	svc := New(st, "host:1", 0)
	res, err := svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, res.Status)
	require.Error(t, res.ExecErr)
	assert.NotErrorIs(t, res.ExecErr, executor.ErrTimeout)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Nil(t, run.ExitCode)
	assert.Contains(t, run.Stderr, "spawn")
}

func TestExecute_UnknownScript(t *testing.T) {
	st := openTestStore(t)

	svc := New(st, "host:1", 0)
	_, err := svc.Execute(context.Background(), trigger.Event{TriggerID: "manual", ScriptID: 99})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecute_LockHeldSkipsWithoutRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "hello", "echo hi", "")
	require.NoError(t, err)

	ok, err := st.TryAcquireLock(ctx, "script:1", "other-host:7")
	require.NoError(t, err)
	require.True(t, ok)

	svc := New(st, "host:1", 0)
	_, err = svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	assert.ErrorIs(t, err, ErrLockHeld)

	runs, err := st.ListRuns(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "a skipped event must leave no run record")
}

func TestExecute_LockReleasedAfterRun(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "hello", "echo hi", "")
	require.NoError(t, err)

	svc := New(st, "host:1", 0)
	_, err = svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	require.NoError(t, err)

	locks, err := st.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)

	// And the next event for the same script goes through.
	res, err := svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, res.Status)
}

func TestExecute_ConcurrentEventsRunAtMostOne(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "slowish", "sleep 0.4", "")
	require.NoError(t, err)

	svc := New(st, "host:1", 0)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ran     int
		skipped int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Execute(ctx, trigger.Event{TriggerID: "manual", ScriptID: sid})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ran++
			case assert.ErrorIs(t, err, ErrLockHeld):
				skipped++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ran, "exactly one event wins the lock")
	assert.Equal(t, 1, skipped)

	runs, err := st.ListRuns(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestExecute_OnFinishedCallback(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "hello", "echo hi", "")
	require.NoError(t, err)

	svc := New(st, "host:1", 0)
	var (
		gotStatus string
		gotRunID  int64
		gotEv     trigger.Event
	)
	svc.OnFinished = func(ev trigger.Event, status string, runID int64) {
		gotEv, gotStatus, gotRunID = ev, status, runID
	}

	res, err := svc.Execute(ctx, trigger.Event{TriggerID: "event:deploys", ScriptID: sid, DeliveryID: 7})
	require.NoError(t, err)
	assert.Equal(t, res.Status, gotStatus)
	assert.Equal(t, res.RunID, gotRunID)
	assert.Equal(t, int64(7), gotEv.DeliveryID)
}
