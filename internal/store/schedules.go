package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// Schedule fires a script either every IntervalSeconds or per a five-field
// cron expression. Exactly one of the two is set.
type Schedule struct {
	ID              int64
	ScriptID        int64
	ScriptName      string // populated by ListSchedules
	IntervalSeconds *int64
	Cron            string // empty when interval-based
	TZ              string // IANA zone for cron evaluation; empty = local
	LastRun         string // empty until the first fire
	CreatedAt       string
}

// AddIntervalSchedule creates a schedule firing every intervalSeconds.
func (s *Store) AddIntervalSchedule(ctx context.Context, scriptID, intervalSeconds int64) (int64, error) {
	if intervalSeconds <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %d", intervalSeconds)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (script_id, interval_seconds, last_run, created_at)
		VALUES (?, ?, NULL, ?)
	`, scriptID, intervalSeconds, timefmt.Now())
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("script %d: %w", scriptID, ErrNotFound)
		}
		return 0, fmt.Errorf("add schedule: %w", err)
	}
	return lastInsertID(res, "add schedule")
}

// AddCronSchedule creates a schedule driven by a five-field cron expression.
// The expression is validated by the caller (internal/cron) before it gets
// here; the store only persists it.
func (s *Store) AddCronSchedule(ctx context.Context, scriptID int64, cronExpr, tz string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (script_id, cron, tz, last_run, created_at)
		VALUES (?, ?, ?, NULL, ?)
	`, scriptID, cronExpr, nullIfEmpty(tz), timefmt.Now())
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("script %d: %w", scriptID, ErrNotFound)
		}
		return 0, fmt.Errorf("add cron schedule: %w", err)
	}
	return lastInsertID(res, "add cron schedule")
}

// ListSchedules returns all schedules with their script names.
func (s *Store) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.script_id, sc.name, s.interval_seconds, s.cron, s.tz, s.last_run, s.created_at
		FROM schedules s
		JOIN scripts sc ON sc.id = s.script_id
		ORDER BY s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var (
			sch      Schedule
			interval sql.NullInt64
			cronExpr sql.NullString
			tz       sql.NullString
			lastRun  sql.NullString
		)
		if err := rows.Scan(&sch.ID, &sch.ScriptID, &sch.ScriptName, &interval, &cronExpr, &tz, &lastRun, &sch.CreatedAt); err != nil {
			return nil, fmt.Errorf("list schedules: scan: %w", err)
		}
		if interval.Valid {
			v := interval.Int64
			sch.IntervalSeconds = &v
		}
		sch.Cron = cronExpr.String
		sch.TZ = tz.String
		sch.LastRun = lastRun.String
		out = append(out, sch)
	}
	return out, rows.Err()
}

// MarkScheduleRun advances last_run. The schedule source calls this before
// emitting the trigger event; the new value de-duplicates the next tick.
func (s *Store) MarkScheduleRun(ctx context.Context, scheduleID int64, now string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET last_run = ? WHERE id = ?
	`, now, scheduleID)
	if err != nil {
		return fmt.Errorf("mark schedule run: %w", err)
	}
	return nil
}

func lastInsertID(res sql.Result, op string) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: last insert id: %w", op, err)
	}
	return id, nil
}
