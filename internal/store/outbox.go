package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avoronkov/warden/internal/model"
)

// appendOutboxTx records an event inside the caller's transaction so
// the event is durable iff the state change it describes is.
func appendOutboxTx(ctx context.Context, tx *sql.Tx, topic, payload string, createdAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO outbox (topic, payload, created_at) VALUES (?, ?, ?)`,
		topic, payload, unix(createdAt))
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// PendingOutbox returns unpublished events in insertion order, up to
// limit.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, topic, payload, created_at
  FROM outbox WHERE published_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.OutboxEvent
	for rows.Next() {
		var (
			ev      model.OutboxEvent
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Payload, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = fromUnix(created)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// MarkPublished stamps one event as delivered.
func (s *Store) MarkPublished(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE outbox SET published_at = ? WHERE id = ? AND published_at IS NULL`,
		unix(now), id)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return requireRow(res)
}
