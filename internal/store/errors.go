package store

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Sentinel errors for the two conditions callers branch on. Everything else
// is an internal error and propagates wrapped.
var (
	// ErrNotFound indicates the referenced row does not exist. The core
	// absorbs it silently (stale trigger); CLI and HTTP surface it as 404.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation: a held lock, a duplicate
	// script or webhook name. Surfaced as 409 / "already exists".
	ErrConflict = errors.New("conflict")
)

// isConstraintErr reports whether err is a SQLite constraint violation
// (UNIQUE, PRIMARY KEY, FOREIGN KEY).
func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}
