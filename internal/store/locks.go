package store

import (
	"context"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// Lock is a best-effort named mutex: presence of the row means held, absence
// means free. Owners are "<host>:<pid>" strings; the store only compares
// them for equality.
//
// There is deliberately no lock timeout. A crashed process leaves a stale
// row that an operator (or the daemon's own startup sweep for local pids)
// must clear; a TTL would permit duplicate concurrent execution under clock
// skew, which is worse than a stuck lock on a single node.
type Lock struct {
	Key        string
	Owner      string
	AcquiredAt string
}

// TryAcquireLock attempts to take the named lock for owner. Returns false if
// any owner (including this one) already holds it. The plain INSERT against
// the primary key is the atomic test-and-set.
func (s *Store) TryAcquireLock(ctx context.Context, key, owner string) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locks (key, owner, acquired_at)
		VALUES (?, ?, ?)
	`, key, owner, timefmt.Now())
	if err != nil {
		if isConstraintErr(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	return true, nil
}

// ReleaseLock frees the lock only when both key and owner match, so a stale
// release cannot steal another owner's lock.
func (s *Store) ReleaseLock(ctx context.Context, key, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM locks WHERE key = ? AND owner = ?
	`, key, owner)
	if err != nil {
		return fmt.Errorf("release lock %q: %w", key, err)
	}
	return nil
}

// ListLocks returns all held locks, for inspection and the startup sweep.
func (s *Store) ListLocks(ctx context.Context) ([]Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, owner, acquired_at FROM locks ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	var out []Lock
	for rows.Next() {
		var l Lock
		if err := rows.Scan(&l.Key, &l.Owner, &l.AcquiredAt); err != nil {
			return nil, fmt.Errorf("list locks: scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLock removes a lock row regardless of owner. Reserved for the
// startup sweep and operator repair; regular callers use ReleaseLock.
func (s *Store) DeleteLock(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM locks WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete lock %q: %w", key, err)
	}
	return nil
}
