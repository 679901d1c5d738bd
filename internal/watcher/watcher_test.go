package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestScan_FirstScanReportsNoChange(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.txt"), time.Now())

	w := New()
	changed, err := w.Scan(dir, false)
	require.NoError(t, err)
	assert.False(t, changed, "first scan must only record the snapshot")
}

func TestScan_DetectsNewFile(t *testing.T) {
	dir := t.TempDir()
	w := New()

	_, err := w.Scan(dir, false)
	require.NoError(t, err)

	touch(t, filepath.Join(dir, "new.txt"), time.Now())
	changed, err := w.Scan(dir, false)
	require.NoError(t, err)
	assert.True(t, changed)

	// Stable afterwards.
	changed, err = w.Scan(dir, false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestScan_DetectsMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	base := time.Now().Add(-time.Hour)
	touch(t, path, base)

	w := New()
	_, err := w.Scan(dir, false)
	require.NoError(t, err)

	touch(t, path, base.Add(time.Minute))
	changed, err := w.Scan(dir, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestScan_DetectsRemovedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	touch(t, path, time.Now())

	w := New()
	_, err := w.Scan(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	changed, err := w.Scan(dir, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestScan_NonRecursiveIgnoresSubdir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w := New()
	_, err := w.Scan(dir, false)
	require.NoError(t, err)

	touch(t, filepath.Join(sub, "deep.txt"), time.Now())
	changed, err := w.Scan(dir, false)
	require.NoError(t, err)
	assert.False(t, changed, "non-recursive scan must not see nested files")
}

func TestScan_RecursiveSeesSubdir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w := New()
	_, err := w.Scan(dir, true)
	require.NoError(t, err)

	touch(t, filepath.Join(sub, "deep.txt"), time.Now())
	changed, err := w.Scan(dir, true)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestScan_RecursiveAndFlatWatchesAreIndependent(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	touch(t, filepath.Join(dir, "top.txt"), time.Now().Add(-time.Hour))
	touch(t, filepath.Join(sub, "deep.txt"), time.Now().Add(-time.Hour))

	// Two watches of the same path with different recursive flags see
	// different file sets; interleaved scans must not clobber each other's
	// snapshots into a perpetual change report.
	w := New()
	_, err := w.Scan(dir, true)
	require.NoError(t, err)
	_, err = w.Scan(dir, false)
	require.NoError(t, err)

	changed, err := w.Scan(dir, true)
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = w.Scan(dir, false)
	require.NoError(t, err)
	assert.False(t, changed)

	// A nested change is a change only for the recursive watch.
	touch(t, filepath.Join(sub, "deep.txt"), time.Now())
	changed, err = w.Scan(dir, true)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = w.Scan(dir, false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestScan_SingleFileBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	base := time.Now().Add(-time.Hour)
	touch(t, path, base)

	w := New()
	changed, err := w.Scan(path, false)
	require.NoError(t, err)
	assert.False(t, changed)

	touch(t, path, base.Add(time.Minute))
	changed, err = w.Scan(path, false)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestScan_MissingPathClearsState(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "w")
	require.NoError(t, os.Mkdir(watched, 0o755))
	touch(t, filepath.Join(watched, "a.txt"), time.Now())

	w := New()
	_, err := w.Scan(watched, false)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(watched))
	changed, err := w.Scan(watched, false)
	require.NoError(t, err)
	assert.False(t, changed, "vanished path reports no change")

	// Reappearance counts as a fresh first scan: no fire until a later
	// scan observes a difference.
	require.NoError(t, os.Mkdir(watched, 0o755))
	touch(t, filepath.Join(watched, "a.txt"), time.Now())
	changed, err = w.Scan(watched, false)
	require.NoError(t, err)
	assert.False(t, changed)
}
