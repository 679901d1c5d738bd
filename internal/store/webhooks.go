package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// Webhook maps a public name to a script so an HTTP POST can trigger it.
type Webhook struct {
	ID         int64
	Name       string
	ScriptID   int64
	ScriptName string
	CreatedAt  string
}

// AddWebhook registers a webhook name for a script.
// Returns ErrConflict if the name is taken.
func (s *Store) AddWebhook(ctx context.Context, name string, scriptID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (name, script_id, created_at)
		VALUES (?, ?, ?)
	`, name, scriptID, timefmt.Now())
	if err != nil {
		if isConstraintErr(err) {
			return 0, fmt.Errorf("webhook %q: %w", name, ErrConflict)
		}
		return 0, fmt.Errorf("add webhook: %w", err)
	}
	return lastInsertID(res, "add webhook")
}

// GetWebhook resolves a webhook by its public name.
func (s *Store) GetWebhook(ctx context.Context, name string) (*Webhook, error) {
	var w Webhook
	err := s.db.QueryRowContext(ctx, `
		SELECT w.id, w.name, w.script_id, s.name, w.created_at
		FROM webhooks w
		JOIN scripts s ON s.id = w.script_id
		WHERE w.name = ?
	`, name).Scan(&w.ID, &w.Name, &w.ScriptID, &w.ScriptName, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return &w, nil
}

// ListWebhooks returns all webhooks with their script names.
func (s *Store) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.script_id, s.name, w.created_at
		FROM webhooks w
		JOIN scripts s ON s.id = w.script_id
		ORDER BY w.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.Name, &w.ScriptID, &w.ScriptName, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("list webhooks: scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// RemoveWebhook deletes a webhook by name. Returns ErrNotFound if absent.
func (s *Store) RemoveWebhook(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("remove webhook: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove webhook: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("webhook %q: %w", name, ErrNotFound)
	}
	return nil
}
