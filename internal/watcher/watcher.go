// Package watcher answers "has this file tree changed since my last scan?"
// by comparing mtime snapshots. It is a polling oracle, not an inotify
// consumer: the scheduler asks once per tick and the oracle diffs against
// the snapshot it kept from the previous tick.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Watcher keeps one snapshot per watched (path, recursive) base. State lives
// in memory only; a restart starts from a fresh first scan, which by design
// reports no change.
type Watcher struct {
	state map[baseKey]map[string]int64 // base -> file path -> mtime (unix nanos)
}

// baseKey identifies one watched base. Recursive and non-recursive watches
// of the same path see different file sets, so they keep separate snapshots.
type baseKey struct {
	path      string
	recursive bool
}

// New creates an empty watcher.
func New() *Watcher {
	return &Watcher{state: make(map[baseKey]map[string]int64)}
}

// Scan walks basePath and reports whether anything changed since the
// previous scan of the same base.
//
//   - A missing base clears any stored state and reports no change.
//   - The first scan of a base only records the snapshot and reports no
//     change; without history there is nothing to compare, and firing here
//     would stampede every watched script on daemon start.
//   - Later scans report a change when the file set differs or any mtime
//     moved, then replace the snapshot.
//
// Files whose stat fails mid-walk are silently skipped; one unreadable file
// must not wedge the trigger.
func (w *Watcher) Scan(basePath string, recursive bool) (bool, error) {
	key := baseKey{path: basePath, recursive: recursive}

	info, err := os.Stat(basePath)
	if os.IsNotExist(err) {
		delete(w.state, key)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	current := make(map[string]int64)

	switch {
	case !info.IsDir():
		current[basePath] = info.ModTime().UnixNano()

	case recursive:
		// Walk errors on individual entries are skipped, not fatal.
		_ = filepath.WalkDir(basePath, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			current[p] = fi.ModTime().UnixNano()
			return nil
		})

	default:
		entries, err := os.ReadDir(basePath)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			current[filepath.Join(basePath, e.Name())] = fi.ModTime().UnixNano()
		}
	}

	previous, seen := w.state[key]
	w.state[key] = current

	if !seen {
		return false, nil
	}
	return !snapshotsEqual(previous, current), nil
}

func snapshotsEqual(a, b map[string]int64) bool {
	if len(a) != len(b) {
		return false
	}
	for p, mt := range a {
		if b[p] != mt {
			return false
		}
	}
	return true
}
