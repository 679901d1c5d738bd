package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// Run statuses. A run is created running and transitions to exactly one of
// the terminal states.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// Run is the durable record of one script execution.
type Run struct {
	ID         int64
	ScriptID   int64
	Status     string
	StartedAt  string
	FinishedAt string // empty while running
	ExitCode   *int   // nil while running or when the process never ran
	Stdout     string
	Stderr     string
	Trigger    string // provenance, e.g. "schedule:17", "webhook:deploy"
}

// CreateRun inserts a running run row and returns its id.
func (s *Store) CreateRun(ctx context.Context, scriptID int64, trigger string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (script_id, status, started_at, "trigger")
		VALUES (?, ?, ?, ?)
	`, scriptID, RunRunning, timefmt.Now(), trigger)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create run: last insert id: %w", err)
	}
	return id, nil
}

// FinishRun finalizes a run with its terminal status, output and exit code.
// The guard on status keeps the transition one-way: a run that is already
// terminal is never rewritten.
func (s *Store) FinishRun(ctx context.Context, runID int64, status string, exitCode *int, stdout, stderr string) error {
	if status != RunSuccess && status != RunFailed {
		return fmt.Errorf("finish run %d: status %q is not terminal", runID, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, exit_code = ?, stdout = ?, stderr = ?
		WHERE id = ? AND status = ?
	`, status, timefmt.Now(), nullableInt(exitCode), stdout, stderr, runID, RunRunning)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %d is not running: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, script_id, status, started_at, finished_at, exit_code, stdout, stderr, "trigger"
		FROM runs WHERE id = ?
	`, id)

	r, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. A scriptID of 0 means
// all scripts.
func (s *Store) ListRuns(ctx context.Context, scriptID int64, limit int) ([]Run, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if scriptID == 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, script_id, status, started_at, finished_at, exit_code, stdout, stderr, "trigger"
			FROM runs ORDER BY id DESC LIMIT ?
		`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, script_id, status, started_at, finished_at, exit_code, stdout, stderr, "trigger"
			FROM runs WHERE script_id = ? ORDER BY id DESC LIMIT ?
		`, scriptID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ClearRuns deletes all run history and returns the number of rows removed.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs")
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear runs: rows affected: %w", err)
	}
	return n, nil
}

func scanRun(scan func(...any) error) (*Run, error) {
	var (
		r          Run
		startedAt  sql.NullString
		finishedAt sql.NullString
		exitCode   sql.NullInt64
		stdout     sql.NullString
		stderr     sql.NullString
		trigger    sql.NullString
	)
	if err := scan(&r.ID, &r.ScriptID, &r.Status, &startedAt, &finishedAt, &exitCode, &stdout, &stderr, &trigger); err != nil {
		return nil, err
	}
	r.StartedAt = startedAt.String
	r.FinishedAt = finishedAt.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		r.ExitCode = &code
	}
	r.Stdout = stdout.String
	r.Stderr = stderr.String
	r.Trigger = trigger.String
	return &r, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
