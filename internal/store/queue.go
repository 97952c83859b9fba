package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avoronkov/warden/internal/model"
)

// InsertQueueEntry persists a new pending entry and, in the same
// transaction, records a queue.enqueued outbox event.
func (s *Store) InsertQueueEntry(ctx context.Context, e *model.QueueEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO queue_entries
    (id, agent_id, user_id, trigger_type, execution_context, status,
     supervisor_type, priority, max_attempts, attempt_count, expires_at,
     created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.UserID, e.TriggerType, e.ExecutionContext, string(e.Status),
		e.SupervisorType, e.Priority, e.MaxAttempts, e.AttemptCount, unix(e.ExpiresAt),
		unix(e.CreatedAt), unix(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}

	if err := appendOutboxTx(ctx, tx, "queue.enqueued", queueEventPayload(e), e.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetQueueEntry fetches one entry by ID.
func (s *Store) GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, queueSelect+" WHERE id = ?", id)
	return scanQueueEntry(row)
}

// ClaimNext atomically claims the best pending entry: highest priority
// first, then soonest expiry, then earliest creation. The conditional
// UPDATE guarantees at most one claimant per entry; losing a race just
// moves on to the next candidate.
func (s *Store) ClaimNext(ctx context.Context, now time.Time) (*model.QueueEntry, error) {
	for {
		row := s.db.QueryRowContext(ctx, queueSelect+`
 WHERE status = 'pending' AND expires_at > ?
 ORDER BY priority DESC, expires_at ASC, created_at ASC
 LIMIT 1`, unix(now))
		candidate, err := scanQueueEntry(row)
		if err != nil {
			if err == ErrNotFound {
				return nil, ErrNotFound
			}
			return nil, err
		}

		claimed, err := s.TryClaim(ctx, candidate.ID, now)
		if err != nil {
			return nil, err
		}
		if claimed {
			return s.GetQueueEntry(ctx, candidate.ID)
		}
		// Lost the race; another worker got this one.
	}
}

// TryClaim attempts the pending→executing transition for one entry.
// Returns false (no-op) if the entry is no longer pending or has
// expired.
func (s *Store) TryClaim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE queue_entries
   SET status = 'executing', attempt_count = attempt_count + 1, updated_at = ?
 WHERE id = ? AND status = 'pending' AND expires_at > ?`,
		unix(now), id, unix(now))
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseEntry returns a claimed entry to pending and refunds the
// attempt the claim consumed. Used when the worker could not even try
// to execute the entry, so the retry budget only counts real execution
// attempts.
func (s *Store) ReleaseEntry(ctx context.Context, id string, now time.Time) error {
	return s.finishEntry(ctx, id, now, "queue.released", `
UPDATE queue_entries
   SET status = 'pending',
       attempt_count = CASE WHEN attempt_count > 0 THEN attempt_count - 1 ELSE 0 END,
       updated_at = ?
 WHERE id = ? AND status = 'executing'`, unix(now), id)
}

// CompleteEntry marks an executing entry completed and records the
// execution that satisfied it.
func (s *Store) CompleteEntry(ctx context.Context, id, executionID string, now time.Time) error {
	return s.finishEntry(ctx, id, now, "queue.completed", `
UPDATE queue_entries
   SET status = 'completed', execution_id = ?, error_message = NULL, updated_at = ?
 WHERE id = ? AND status = 'executing'`, executionID, unix(now), id)
}

// FailAttempt records a failed execution attempt. The entry goes back
// to pending while the retry budget lasts; once attempts are exhausted
// or the entry has expired, it is terminal failed. Expiry wins over
// the retry budget.
func (s *Store) FailAttempt(ctx context.Context, id, errMsg string, now time.Time) (model.QueueStatus, error) {
	e, err := s.GetQueueEntry(ctx, id)
	if err != nil {
		return "", err
	}
	if e.Status != model.QueueExecuting {
		return e.Status, fmt.Errorf("fail attempt: entry %s is %s, not executing", id, e.Status)
	}

	next := model.QueuePending
	if !now.Before(e.ExpiresAt) || e.AttemptCount >= e.MaxAttempts {
		next = model.QueueFailed
	}

	topic := "queue.requeued"
	if next == model.QueueFailed {
		topic = "queue.failed"
	}
	err = s.finishEntry(ctx, id, now, topic, `
UPDATE queue_entries
   SET status = ?, error_message = ?, updated_at = ?
 WHERE id = ? AND status = 'executing'`, string(next), errMsg, unix(now), id)
	if err != nil {
		return "", err
	}
	return next, nil
}

// CancelEntry transitions a non-terminal entry to cancelled.
func (s *Store) CancelEntry(ctx context.Context, id string, now time.Time) error {
	return s.finishEntry(ctx, id, now, "queue.cancelled", `
UPDATE queue_entries
   SET status = 'cancelled', updated_at = ?
 WHERE id = ? AND status IN ('pending', 'executing')`, unix(now), id)
}

// ExpireStale fails every pending or executing entry whose deadline has
// passed. Returns the number of entries expired.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE queue_entries
   SET status = 'failed', error_message = 'expired', updated_at = ?
 WHERE status IN ('pending', 'executing') AND expires_at <= ?`,
		unix(now), unix(now))
	if err != nil {
		return 0, fmt.Errorf("expire stale: %w", err)
	}
	return res.RowsAffected()
}

// ListQueueEntries returns entries filtered by status; an empty status
// returns everything, newest first.
func (s *Store) ListQueueEntries(ctx context.Context, status model.QueueStatus) ([]*model.QueueEntry, error) {
	query := queueSelect
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*model.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// finishEntry runs a guarded status UPDATE plus an outbox event in one
// transaction. ErrNotFound means the guard refused the transition.
func (s *Store) finishEntry(ctx context.Context, id string, now time.Time, topic, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	payload, _ := json.Marshal(map[string]string{"entry_id": id})
	if err := appendOutboxTx(ctx, tx, topic, string(payload), now); err != nil {
		return err
	}
	return tx.Commit()
}

const queueSelect = `
SELECT id, agent_id, user_id, trigger_type, execution_context, status,
       supervisor_type, priority, max_attempts, attempt_count, expires_at,
       execution_id, error_message, created_at, updated_at
  FROM queue_entries`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(row rowScanner) (*model.QueueEntry, error) {
	var (
		e       model.QueueEntry
		status  string
		expires int64
		execID  sql.NullString
		errMsg  sql.NullString
		created int64
		updated int64
	)
	err := row.Scan(&e.ID, &e.AgentID, &e.UserID, &e.TriggerType, &e.ExecutionContext,
		&status, &e.SupervisorType, &e.Priority, &e.MaxAttempts, &e.AttemptCount,
		&expires, &execID, &errMsg, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Status = model.QueueStatus(status)
	e.ExpiresAt = fromUnix(expires)
	e.ExecutionID = execID.String
	e.ErrorMessage = errMsg.String
	e.CreatedAt = fromUnix(created)
	e.UpdatedAt = fromUnix(updated)
	return &e, nil
}

func queueEventPayload(e *model.QueueEntry) string {
	payload, _ := json.Marshal(map[string]any{
		"entry_id":     e.ID,
		"agent_id":     e.AgentID,
		"trigger_type": e.TriggerType,
		"priority":     e.Priority,
	})
	return string(payload)
}
