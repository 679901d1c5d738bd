package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitErrorCodes(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "nope")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestExitErrorWrapping(t *testing.T) {
	inner := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "open database", inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "open database: disk full", err.Error())

	var exitErr *ExitError
	require.True(t, errors.As(fmt.Errorf("daemon: %w", err), &exitErr))
	assert.Equal(t, ExitCommandError, exitErr.Code)
}

func TestFormatterJSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.SuccessJSON(map[string]any{"id": 7}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestFormatterJSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error("not_found", "no script"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestFormatterTextError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Error("conflict", "script exists"))
	assert.Equal(t, "Error [conflict]: script exists\n", buf.String())
}

func TestFormatterVerboseLogGoesToErrWriter(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}

	f.VerboseLog("probing %s", "path")
	assert.Empty(t, out.String(), "diagnostics must not corrupt JSON output")
	assert.Equal(t, "probing path\n", errOut.String())

	f.Verbose = false
	errOut.Reset()
	f.VerboseLog("silent")
	assert.Empty(t, errOut.String())
}
