package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	res, err := Run(context.Background(), "echo hi", "", 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestRun_CapturesStderrAndExitCode(t *testing.T) {
	res, err := Run(context.Background(), "echo oops >&2; exit 3", "", 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()

	res, err := Run(context.Background(), "pwd", dir, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", res.Stdout)
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), "sleep 30", "", 500*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimeout)
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)
	assert.Less(t, elapsed, 10*time.Second, "timeout must not wait for the child")
}

func TestRun_BadWorkingDirectory(t *testing.T) {
	res, err := Run(context.Background(), "echo hi", "/nonexistent/dir", 10*time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Nil(t, res)
}

func TestRun_DefaultTimeoutApplied(t *testing.T) {
	// Zero timeout must not mean "no timeout" - just make sure a quick
	// command still works through the default path.
	res, err := Run(context.Background(), "true", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}
