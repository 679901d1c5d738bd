package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// OneShot fires a script once at RunAtUTC. FiredAtUTC is null until the shot
// is claimed; once set it never reverts, which is what makes the claim
// at-most-once.
type OneShot struct {
	ID           int64
	ScriptID     int64
	RunAtUTC     string
	TZ           string // informational only; RunAtUTC is always UTC
	FiredAtUTC   string // empty until claimed
	CreatedAtUTC string
}

// AddOneShot schedules a single future execution.
func (s *Store) AddOneShot(ctx context.Context, scriptID int64, runAtUTC, tz string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO one_shots (script_id, run_at_utc, tz, fired_at_utc, created_at_utc)
		VALUES (?, ?, ?, NULL, ?)
	`, scriptID, runAtUTC, nullIfEmpty(tz), timefmt.Now())
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("script %d: %w", scriptID, ErrNotFound)
		}
		return 0, fmt.Errorf("add one-shot: %w", err)
	}
	return lastInsertID(res, "add one-shot")
}

// ListOneShots returns one-shots ordered by run time. When includeFired is
// false only pending shots are returned.
func (s *Store) ListOneShots(ctx context.Context, includeFired bool) ([]OneShot, error) {
	q := `
		SELECT id, script_id, run_at_utc, tz, fired_at_utc, created_at_utc
		FROM one_shots
		WHERE fired_at_utc IS NULL
		ORDER BY run_at_utc ASC
	`
	if includeFired {
		q = `
			SELECT id, script_id, run_at_utc, tz, fired_at_utc, created_at_utc
			FROM one_shots
			ORDER BY run_at_utc ASC
		`
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list one-shots: %w", err)
	}
	defer rows.Close()

	var out []OneShot
	for rows.Next() {
		var (
			o     OneShot
			tz    sql.NullString
			fired sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.ScriptID, &o.RunAtUTC, &tz, &fired, &o.CreatedAtUTC); err != nil {
			return nil, fmt.Errorf("list one-shots: scan: %w", err)
		}
		o.TZ = tz.String
		o.FiredAtUTC = fired.String
		out = append(out, o)
	}
	return out, rows.Err()
}

// RemoveOneShot deletes a one-shot. Returns ErrNotFound if absent.
func (s *Store) RemoveOneShot(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM one_shots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove one-shot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove one-shot: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("one-shot %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClaimDueOneShots atomically marks up to limit due, unfired one-shots as
// fired and returns them. The single UPDATE ... RETURNING statement is what
// guarantees two concurrent pollers can never both observe the same row
// unclaimed: SQLite serializes the statement, and the WHERE re-checks
// fired_at_utc IS NULL inside it.
func (s *Store) ClaimDueOneShots(ctx context.Context, nowUTC string, limit int) ([]OneShot, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE one_shots
		SET fired_at_utc = ?
		WHERE id IN (
			SELECT id
			FROM one_shots
			WHERE fired_at_utc IS NULL AND run_at_utc <= ?
			ORDER BY run_at_utc ASC
			LIMIT ?
		)
		RETURNING id, script_id, run_at_utc, tz
	`, nowUTC, nowUTC, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due one-shots: %w", err)
	}
	defer rows.Close()

	var out []OneShot
	for rows.Next() {
		var (
			o  OneShot
			tz sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.ScriptID, &o.RunAtUTC, &tz); err != nil {
			return nil, fmt.Errorf("claim due one-shots: scan: %w", err)
		}
		o.TZ = tz.String
		o.FiredAtUTC = nowUTC
		out = append(out, o)
	}
	return out, rows.Err()
}
