package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// FileTrigger fires a script when files under Path change.
type FileTrigger struct {
	ID         int64
	ScriptID   int64
	ScriptName string // populated by ListFileTriggers
	Path       string
	Recursive  bool
}

// AddFileTrigger registers a watch on path for the given script.
func (s *Store) AddFileTrigger(ctx context.Context, scriptID int64, path string, recursive bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO file_triggers (script_id, path, recursive, created_at)
		VALUES (?, ?, ?, ?)
	`, scriptID, path, boolToInt(recursive), timefmt.Now())
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("script %d: %w", scriptID, ErrNotFound)
		}
		return 0, fmt.Errorf("add file trigger: %w", err)
	}
	return lastInsertID(res, "add file trigger")
}

// ListFileTriggers returns all file triggers with their script names.
func (s *Store) ListFileTriggers(ctx context.Context) ([]FileTrigger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ft.id, ft.script_id, s.name, ft.path, ft.recursive
		FROM file_triggers ft
		JOIN scripts s ON s.id = ft.script_id
		ORDER BY ft.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list file triggers: %w", err)
	}
	defer rows.Close()

	var out []FileTrigger
	for rows.Next() {
		var (
			ft        FileTrigger
			recursive int
		)
		if err := rows.Scan(&ft.ID, &ft.ScriptID, &ft.ScriptName, &ft.Path, &recursive); err != nil {
			return nil, fmt.Errorf("list file triggers: scan: %w", err)
		}
		ft.Recursive = recursive != 0
		out = append(out, ft)
	}
	return out, rows.Err()
}

// GetFileTrigger fetches a file trigger by id.
func (s *Store) GetFileTrigger(ctx context.Context, id int64) (*FileTrigger, error) {
	var (
		ft        FileTrigger
		recursive int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, script_id, path, recursive FROM file_triggers WHERE id = ?
	`, id).Scan(&ft.ID, &ft.ScriptID, &ft.Path, &recursive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file trigger: %w", err)
	}
	ft.Recursive = recursive != 0
	return &ft, nil
}

// RemoveFileTrigger deletes a file trigger. Returns ErrNotFound if absent.
func (s *Store) RemoveFileTrigger(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM file_triggers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove file trigger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove file trigger: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file trigger %d: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
