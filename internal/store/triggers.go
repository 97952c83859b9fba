package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
)

// InsertTrigger records a governance denial, with a trigger.blocked
// outbox event in the same transaction.
func (s *Store) InsertTrigger(ctx context.Context, t *model.BlockedTriggerContext) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO blocked_triggers
    (id, agent_id, maturity_at_block, confidence_score, trigger_source,
     trigger_type, trigger_context, routing_decision, block_reason,
     resolved, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		t.ID, t.AgentID, t.MaturityAtBlock.String(), t.ConfidenceScoreAtBlock,
		t.TriggerSource, t.TriggerType, t.TriggerContext,
		string(t.RoutingDecision), t.BlockReason, unix(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}

	payload := fmt.Sprintf(`{"trigger_id":%q,"agent_id":%q}`, t.ID, t.AgentID)
	if err := appendOutboxTx(ctx, tx, "trigger.blocked", payload, t.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTrigger fetches one blocked trigger by ID.
func (s *Store) GetTrigger(ctx context.Context, id string) (*model.BlockedTriggerContext, error) {
	row := s.db.QueryRowContext(ctx, triggerSelect+" WHERE id = ?", id)
	return scanTrigger(row)
}

// SetTriggerRouting records where an unresolved trigger was escalated.
func (s *Store) SetTriggerRouting(ctx context.Context, id string, routing model.RoutingDecision) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE blocked_triggers SET routing_decision = ?
 WHERE id = ? AND resolved = 0`, string(routing), id)
	if err != nil {
		return fmt.Errorf("set routing: %w", err)
	}
	return requireRow(res)
}

// ResolveTrigger marks a trigger resolved with the given outcome, with
// a trigger.resolved outbox event in the same transaction.
func (s *Store) ResolveTrigger(ctx context.Context, id, outcome string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE blocked_triggers
   SET resolved = 1, resolved_at = ?, resolution_outcome = ?
 WHERE id = ? AND resolved = 0`, unix(now), outcome, id)
	if err != nil {
		return fmt.Errorf("resolve trigger: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	payload := fmt.Sprintf(`{"trigger_id":%q,"outcome":%q}`, id, outcome)
	if err := appendOutboxTx(ctx, tx, "trigger.resolved", payload, now); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTriggers returns triggers, optionally only unresolved ones,
// newest first.
func (s *Store) ListTriggers(ctx context.Context, unresolvedOnly bool) ([]*model.BlockedTriggerContext, error) {
	query := triggerSelect
	if unresolvedOnly {
		query += " WHERE resolved = 0"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []*model.BlockedTriggerContext
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

const triggerSelect = `
SELECT id, agent_id, maturity_at_block, confidence_score, trigger_source,
       trigger_type, trigger_context, routing_decision, block_reason,
       resolved, resolved_at, resolution_outcome, created_at
  FROM blocked_triggers`

func scanTrigger(row rowScanner) (*model.BlockedTriggerContext, error) {
	var (
		t          model.BlockedTriggerContext
		levelName  string
		routing    string
		resolved   int
		resolvedAt sql.NullInt64
		outcome    sql.NullString
		created    int64
	)
	err := row.Scan(&t.ID, &t.AgentID, &levelName, &t.ConfidenceScoreAtBlock,
		&t.TriggerSource, &t.TriggerType, &t.TriggerContext, &routing,
		&t.BlockReason, &resolved, &resolvedAt, &outcome, &created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	level, err := maturity.Parse(levelName)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", t.ID, err)
	}
	t.MaturityAtBlock = level
	t.RoutingDecision = model.RoutingDecision(routing)
	t.Resolved = resolved == 1
	t.ResolvedAt = nullableTime(resolvedAt)
	t.ResolutionOutcome = outcome.String
	t.CreatedAt = fromUnix(created)
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
