package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scripter/internal/timefmt"
)

// Event is one published message on a topic.
type Event struct {
	ID           int64
	Topic        string
	PayloadJSON  string // opaque; empty when published without a payload
	CreatedAtUTC string
}

// Subscription binds a topic to a script; unique per (topic, script).
type Subscription struct {
	ID           int64
	Topic        string
	ScriptID     int64
	ScriptName   string // populated by ListSubscriptions
	CreatedAtUTC string
}

// Delivery is the materialized intent "subscription S receives event E".
// Lifecycle: unclaimed -> claimed by an owner -> processed. It never moves
// backwards.
type Delivery struct {
	ID             int64
	EventID        int64
	SubscriptionID int64
	ClaimedAtUTC   string
	ClaimedBy      string
	ProcessedAtUTC string
}

// ClaimedDelivery joins a freshly claimed delivery with its event and
// subscription so the caller can dispatch without further lookups.
type ClaimedDelivery struct {
	DeliveryID  int64
	EventID     int64
	ScriptID    int64
	Topic       string
	PayloadJSON string
}

// PublishEvent inserts the event and, in the same transaction, materializes
// one unprocessed delivery per current subscription on the topic. Fan-out at
// publish time turns polling into a plain claim-by-row workload with no
// subscription scan per tick.
func (s *Store) PublishEvent(ctx context.Context, topic, payloadJSON string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("publish event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO events (topic, payload_json, created_at_utc)
		VALUES (?, ?, ?)
	`, topic, nullIfEmpty(payloadJSON), timefmt.Now())
	if err != nil {
		return 0, fmt.Errorf("publish event: insert: %w", err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("publish event: last insert id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO deliveries (event_id, subscription_id, claimed_at_utc, claimed_by, processed_at_utc)
		SELECT ?, s.id, NULL, NULL, NULL
		FROM subscriptions s
		WHERE s.topic = ?
	`, eventID, topic)
	if err != nil {
		return 0, fmt.Errorf("publish event: fan out deliveries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("publish event: commit: %w", err)
	}
	return eventID, nil
}

// Subscribe binds a script to a topic and backfills deliveries for every
// event already published on it, so a late subscriber still sees history.
// Subscribing twice is idempotent and returns the existing subscription id.
func (s *Store) Subscribe(ctx context.Context, topic string, scriptID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("subscribe: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO subscriptions (topic, script_id, created_at_utc)
		VALUES (?, ?, ?)
	`, topic, scriptID, timefmt.Now())
	if err != nil {
		return 0, fmt.Errorf("subscribe: insert: %w", err)
	}

	var subID int64
	if n, _ := res.RowsAffected(); n > 0 {
		subID, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("subscribe: last insert id: %w", err)
		}
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM subscriptions WHERE topic = ? AND script_id = ?
		`, topic, scriptID).Scan(&subID)
		if err != nil {
			return 0, fmt.Errorf("subscribe: select existing: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO deliveries (event_id, subscription_id, claimed_at_utc, claimed_by, processed_at_utc)
		SELECT e.id, ?, NULL, NULL, NULL
		FROM events e
		WHERE e.topic = ?
	`, subID, topic)
	if err != nil {
		return 0, fmt.Errorf("subscribe: backfill deliveries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("subscribe: commit: %w", err)
	}
	return subID, nil
}

// ListSubscriptions returns all subscriptions with their script names.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT su.id, su.topic, su.script_id, sc.name, su.created_at_utc
		FROM subscriptions su
		JOIN scripts sc ON sc.id = su.script_id
		ORDER BY su.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.Topic, &sub.ScriptID, &sub.ScriptName, &sub.CreatedAtUTC); err != nil {
			return nil, fmt.Errorf("list subscriptions: scan: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ListDeliveries returns deliveries newest first, for operator inspection.
// A claimed-but-unprocessed row whose owner is dead stays visible here until
// manually repaired; there is deliberately no automatic reaper.
func (s *Store) ListDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, subscription_id, claimed_at_utc, claimed_by, processed_at_utc
		FROM deliveries ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d         Delivery
			claimedAt sql.NullString
			claimedBy sql.NullString
			processed sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.EventID, &d.SubscriptionID, &claimedAt, &claimedBy, &processed); err != nil {
			return nil, fmt.Errorf("list deliveries: scan: %w", err)
		}
		d.ClaimedAtUTC = claimedAt.String
		d.ClaimedBy = claimedBy.String
		d.ProcessedAtUTC = processed.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClaimReadyDeliveries atomically claims up to limit unclaimed, unprocessed
// deliveries for owner and returns them joined with event and subscription.
// As with one-shots, the claim is a single UPDATE ... RETURNING so two
// concurrent owners partition the rows instead of both claiming them.
func (s *Store) ClaimReadyDeliveries(ctx context.Context, owner string, limit int) ([]ClaimedDelivery, error) {
	now := timefmt.Now()

	rows, err := s.db.QueryContext(ctx, `
		UPDATE deliveries
		SET claimed_at_utc = ?, claimed_by = ?
		WHERE id IN (
			SELECT d.id
			FROM deliveries d
			WHERE d.processed_at_utc IS NULL AND d.claimed_at_utc IS NULL
			ORDER BY d.id ASC
			LIMIT ?
		)
		RETURNING id, event_id, subscription_id
	`, now, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("claim ready deliveries: %w", err)
	}

	type claimed struct{ id, eventID, subID int64 }
	var ids []claimed
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.id, &c.eventID, &c.subID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("claim ready deliveries: scan: %w", err)
		}
		ids = append(ids, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("claim ready deliveries: %w", err)
	}
	rows.Close()

	out := make([]ClaimedDelivery, 0, len(ids))
	for _, c := range ids {
		var (
			cd      ClaimedDelivery
			payload sql.NullString
		)
		err := s.db.QueryRowContext(ctx, `
			SELECT d.id, d.event_id, su.script_id, e.topic, e.payload_json
			FROM deliveries d
			JOIN subscriptions su ON su.id = d.subscription_id
			JOIN events e ON e.id = d.event_id
			WHERE d.id = ?
		`, c.id).Scan(&cd.DeliveryID, &cd.EventID, &cd.ScriptID, &cd.Topic, &payload)
		if err != nil {
			return nil, fmt.Errorf("claim ready deliveries: join %d: %w", c.id, err)
		}
		cd.PayloadJSON = payload.String
		out = append(out, cd)
	}
	return out, nil
}

// MarkDeliveryProcessed sets processed_at if it is still null. Idempotent:
// marking twice, or marking an already processed delivery, is a no-op.
func (s *Store) MarkDeliveryProcessed(ctx context.Context, deliveryID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET processed_at_utc = ?
		WHERE id = ? AND processed_at_utc IS NULL
	`, timefmt.Now(), deliveryID)
	if err != nil {
		return fmt.Errorf("mark delivery processed: %w", err)
	}
	return nil
}

// GetDelivery fetches a delivery by id, for tests and inspection.
func (s *Store) GetDelivery(ctx context.Context, id int64) (*Delivery, error) {
	var (
		d         Delivery
		claimedAt sql.NullString
		claimedBy sql.NullString
		processed sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, subscription_id, claimed_at_utc, claimed_by, processed_at_utc
		FROM deliveries WHERE id = ?
	`, id).Scan(&d.ID, &d.EventID, &d.SubscriptionID, &claimedAt, &claimedBy, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	d.ClaimedAtUTC = claimedAt.String
	d.ClaimedBy = claimedBy.String
	d.ProcessedAtUTC = processed.String
	return &d, nil
}
