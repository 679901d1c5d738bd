package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scripter/internal/runner"
	"github.com/roach88/scripter/internal/store"
)

func newTestServer(t *testing.T) (*store.Store, *httptest.Server) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(NewServer(st, runner.New(st, "host:1", 10*time.Second)).Router())
	t.Cleanup(srv.Close)
	return st, srv
}

func post(t *testing.T, url string) (int, Response) {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestTrigger_SuccessfulRun(t *testing.T) {
	st, srv := newTestServer(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "deploy", "echo deployed", "")
	require.NoError(t, err)
	_, err = st.AddWebhook(ctx, "deploy-hook", sid)
	require.NoError(t, err)

	code, body := post(t, srv.URL+"/trigger/deploy-hook")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.OK)
	assert.Equal(t, store.RunSuccess, body.Status)
	require.NotZero(t, body.RunID)

	run, err := st.GetRun(ctx, body.RunID)
	require.NoError(t, err)
	assert.Equal(t, "webhook:deploy-hook", run.Trigger)
	assert.Equal(t, "deployed\n", run.Stdout)
}

func TestTrigger_UnknownWebhook(t *testing.T) {
	_, srv := newTestServer(t)

	code, body := post(t, srv.URL+"/trigger/nope")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, body.OK)
	assert.Contains(t, body.Error, "nope")
}

func TestTrigger_LockHeldConflicts(t *testing.T) {
	st, srv := newTestServer(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "deploy", "echo deployed", "")
	require.NoError(t, err)
	_, err = st.AddWebhook(ctx, "deploy-hook", sid)
	require.NoError(t, err)

	ok, err := st.TryAcquireLock(ctx, fmt.Sprintf("script:%d", sid), "elsewhere:1")
	require.NoError(t, err)
	require.True(t, ok)

	code, body := post(t, srv.URL+"/trigger/deploy-hook")
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, body.OK)
	assert.Contains(t, body.Error, "already running")
}

func TestTrigger_NonZeroExitIsStillOK(t *testing.T) {
	st, srv := newTestServer(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "broken", "exit 2", "")
	require.NoError(t, err)
	_, err = st.AddWebhook(ctx, "broken-hook", sid)
	require.NoError(t, err)

	// The process ran to completion; its exit code is data, not a server
	// error. The caller reads the status from the 200 body.
	code, body := post(t, srv.URL+"/trigger/broken-hook")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.OK)
	assert.Equal(t, store.RunFailed, body.Status)
	require.NotZero(t, body.RunID)

	run, err := st.GetRun(ctx, body.RunID)
	require.NoError(t, err)
	require.NotNil(t, run.ExitCode)
	assert.Equal(t, 2, *run.ExitCode)
}

func TestTrigger_TimeoutIsServerError(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(NewServer(st, runner.New(st, "host:1", 100*time.Millisecond)).Router())
	t.Cleanup(srv.Close)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "slow", "sleep 5", "")
	require.NoError(t, err)
	_, err = st.AddWebhook(ctx, "slow-hook", sid)
	require.NoError(t, err)

	code, body := post(t, srv.URL+"/trigger/slow-hook")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.False(t, body.OK)
	assert.Equal(t, store.RunFailed, body.Status)
	assert.NotZero(t, body.RunID, "the killed run is still recorded and addressable")
	assert.Contains(t, body.Error, "timeout")
}

func TestTrigger_MethodNotAllowed(t *testing.T) {
	st, srv := newTestServer(t)
	ctx := context.Background()

	sid, err := st.AddScript(ctx, "deploy", "echo hi", "")
	require.NoError(t, err)
	_, err = st.AddWebhook(ctx, "deploy-hook", sid)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/trigger/deploy-hook")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
