package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// Script is a registered shell command. Every trigger and every run
// references exactly one script.
type Script struct {
	ID         int64
	Name       string
	Command    string
	WorkingDir string // empty = inherit the daemon's cwd
	CreatedAt  string
	UpdatedAt  string
}

// AddScript registers a new script and returns its id.
// Returns ErrConflict if the name is already taken.
func (s *Store) AddScript(ctx context.Context, name, command, workingDir string) (int64, error) {
	now := timefmt.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scripts (name, command, working_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, command, nullIfEmpty(workingDir), now, now)
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("script %q: %w", name, ErrConflict)
		}
		return 0, fmt.Errorf("add script: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add script: last insert id: %w", err)
	}
	return id, nil
}

// GetScript fetches a script by id. Returns ErrNotFound if it does not exist.
func (s *Store) GetScript(ctx context.Context, id int64) (*Script, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, command, working_dir, created_at, updated_at
		FROM scripts WHERE id = ?
	`, id)
	return scanScript(row)
}

// GetScriptByName fetches a script by its unique name.
func (s *Store) GetScriptByName(ctx context.Context, name string) (*Script, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, command, working_dir, created_at, updated_at
		FROM scripts WHERE name = ?
	`, name)
	return scanScript(row)
}

// ListScripts returns all scripts ordered by id.
func (s *Store) ListScripts(ctx context.Context) ([]Script, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, command, working_dir, created_at, updated_at
		FROM scripts ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var out []Script
	for rows.Next() {
		var (
			sc  Script
			cwd sql.NullString
		)
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Command, &cwd, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list scripts: scan: %w", err)
		}
		sc.WorkingDir = cwd.String
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpdateScript edits a script's command and working directory.
// Returns ErrNotFound if the id does not exist.
func (s *Store) UpdateScript(ctx context.Context, id int64, command, workingDir string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scripts SET command = ?, working_dir = ?, updated_at = ? WHERE id = ?
	`, command, nullIfEmpty(workingDir), timefmt.Now(), id)
	if err != nil {
		return fmt.Errorf("update script: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update script: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("script %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanScript(row *sql.Row) (*Script, error) {
	var (
		sc  Script
		cwd sql.NullString
	)
	err := row.Scan(&sc.ID, &sc.Name, &sc.Command, &cwd, &sc.CreatedAt, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get script: %w", err)
	}
	sc.WorkingDir = cwd.String
	return &sc, nil
}

// nullIfEmpty maps "" to NULL so optional text columns stay nullable.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
