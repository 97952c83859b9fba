package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avoronkov/warden/internal/model"
)

// InsertSupervisionSession persists a new supervision session.
func (s *Store) InsertSupervisionSession(ctx context.Context, sess *model.SupervisionSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO supervision_sessions
    (id, agent_id, trigger_id, intervention_count, interventions,
     agent_actions, outcomes, supervisor_rating, confidence_boost, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AgentID, sess.TriggerID, sess.InterventionCount,
		marshalList(sess.Interventions), marshalList(sess.AgentActions),
		sess.Outcomes, sess.SupervisorRating, sess.ConfidenceBoost, unix(sess.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert supervision session: %w", err)
	}
	return nil
}

// GetSupervisionSession fetches one session by ID.
func (s *Store) GetSupervisionSession(ctx context.Context, id string) (*model.SupervisionSession, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, agent_id, trigger_id, intervention_count, interventions,
       agent_actions, outcomes, supervisor_rating, confidence_boost,
       created_at, completed_at
  FROM supervision_sessions WHERE id = ?`, id)

	var (
		sess          model.SupervisionSession
		triggerID     sql.NullString
		interventions string
		actions       string
		created       int64
		completed     sql.NullInt64
	)
	err := row.Scan(&sess.ID, &sess.AgentID, &triggerID, &sess.InterventionCount,
		&interventions, &actions, &sess.Outcomes, &sess.SupervisorRating,
		&sess.ConfidenceBoost, &created, &completed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.TriggerID = triggerID.String
	sess.Interventions = unmarshalList(interventions)
	sess.AgentActions = unmarshalList(actions)
	sess.CreatedAt = fromUnix(created)
	sess.CompletedAt = nullableTime(completed)
	return &sess, nil
}

// AppendIntervention adds one human intervention note to a live
// session and bumps the counter.
func (s *Store) AppendIntervention(ctx context.Context, id, note string) error {
	sess, err := s.GetSupervisionSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.CompletedAt != nil {
		return fmt.Errorf("supervision session %s already completed", id)
	}
	updated := append(sess.Interventions, note)
	res, err := s.db.ExecContext(ctx, `
UPDATE supervision_sessions
   SET interventions = ?, intervention_count = intervention_count + 1
 WHERE id = ? AND completed_at IS NULL`, marshalList(updated), id)
	if err != nil {
		return fmt.Errorf("append intervention: %w", err)
	}
	return requireRow(res)
}

// AppendAgentAction records one observed agent action on a live session.
func (s *Store) AppendAgentAction(ctx context.Context, id, action string) error {
	sess, err := s.GetSupervisionSession(ctx, id)
	if err != nil {
		return err
	}
	if sess.CompletedAt != nil {
		return fmt.Errorf("supervision session %s already completed", id)
	}
	updated := append(sess.AgentActions, action)
	res, err := s.db.ExecContext(ctx, `
UPDATE supervision_sessions SET agent_actions = ?
 WHERE id = ? AND completed_at IS NULL`, marshalList(updated), id)
	if err != nil {
		return fmt.Errorf("append agent action: %w", err)
	}
	return requireRow(res)
}

// CompleteSupervisionSession closes a session with the supervisor's
// verdict. Terminal: completed_at is set exactly once.
func (s *Store) CompleteSupervisionSession(ctx context.Context, id, outcomes string, rating int, boost float64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE supervision_sessions
   SET outcomes = ?, supervisor_rating = ?, confidence_boost = ?, completed_at = ?
 WHERE id = ? AND completed_at IS NULL`,
		outcomes, rating, boost, unix(now), id)
	if err != nil {
		return fmt.Errorf("complete supervision session: %w", err)
	}
	return requireRow(res)
}

// InsertProposal persists a new agent proposal.
func (s *Store) InsertProposal(ctx context.Context, p *model.AgentProposal) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agent_proposals
    (id, agent_id, proposal_type, proposed_action, learning_objectives,
     capability_gaps, estimated_duration_hours, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AgentID, p.ProposalType, p.ProposedAction,
		marshalList(p.LearningObjectives), marshalList(p.CapabilityGaps),
		p.EstimatedDurationHours, string(p.Status), unix(p.CreatedAt), unix(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

// GetProposal fetches one proposal by ID.
func (s *Store) GetProposal(ctx context.Context, id string) (*model.AgentProposal, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, agent_id, proposal_type, proposed_action, learning_objectives,
       capability_gaps, estimated_duration_hours, status, approved_by,
       created_at, updated_at
  FROM agent_proposals WHERE id = ?`, id)

	var (
		p          model.AgentProposal
		objectives string
		gaps       string
		status     string
		approvedBy sql.NullString
		created    int64
		updated    int64
	)
	err := row.Scan(&p.ID, &p.AgentID, &p.ProposalType, &p.ProposedAction,
		&objectives, &gaps, &p.EstimatedDurationHours, &status, &approvedBy,
		&created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.LearningObjectives = unmarshalList(objectives)
	p.CapabilityGaps = unmarshalList(gaps)
	p.Status = model.ProposalStatus(status)
	p.ApprovedBy = approvedBy.String
	p.CreatedAt = fromUnix(created)
	p.UpdatedAt = fromUnix(updated)
	return &p, nil
}

// SetProposalStatus transitions a proposal, recording who approved it
// when moving to approved.
func (s *Store) SetProposalStatus(ctx context.Context, id string, status model.ProposalStatus, approvedBy string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE agent_proposals SET status = ?, approved_by = ?, updated_at = ?
 WHERE id = ?`, string(status), nullString(approvedBy), unix(now), id)
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	return requireRow(res)
}

// InsertTrainingSession persists a new training session.
func (s *Store) InsertTrainingSession(ctx context.Context, ts *model.TrainingSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO training_sessions
    (id, proposal_id, agent_id, status, tasks_completed, total_tasks,
     performance_score, errors_count, promoted_to_intern,
     capabilities_developed, capability_gaps_remaining, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.ID, ts.ProposalID, ts.AgentID, string(ts.Status), ts.TasksCompleted,
		ts.TotalTasks, ts.PerformanceScore, ts.ErrorsCount, boolInt(ts.PromotedToIntern),
		marshalList(ts.CapabilitiesDeveloped), marshalList(ts.CapabilityGapsRemaining),
		unix(ts.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert training session: %w", err)
	}
	return nil
}

// GetTrainingSession fetches one training session by ID.
func (s *Store) GetTrainingSession(ctx context.Context, id string) (*model.TrainingSession, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, proposal_id, agent_id, status, tasks_completed, total_tasks,
       performance_score, errors_count, promoted_to_intern,
       capabilities_developed, capability_gaps_remaining, created_at, completed_at
  FROM training_sessions WHERE id = ?`, id)

	var (
		ts        model.TrainingSession
		status    string
		promoted  int
		caps      string
		gaps      string
		created   int64
		completed sql.NullInt64
	)
	err := row.Scan(&ts.ID, &ts.ProposalID, &ts.AgentID, &status, &ts.TasksCompleted,
		&ts.TotalTasks, &ts.PerformanceScore, &ts.ErrorsCount, &promoted,
		&caps, &gaps, &created, &completed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ts.Status = model.TrainingStatus(status)
	ts.PromotedToIntern = promoted == 1
	ts.CapabilitiesDeveloped = unmarshalList(caps)
	ts.CapabilityGapsRemaining = unmarshalList(gaps)
	ts.CreatedAt = fromUnix(created)
	ts.CompletedAt = nullableTime(completed)
	return &ts, nil
}

// RecordTrainingProgress updates task counts and errors on a live
// session.
func (s *Store) RecordTrainingProgress(ctx context.Context, id string, tasksCompleted, errorsCount int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE training_sessions SET tasks_completed = ?, errors_count = ?
 WHERE id = ? AND completed_at IS NULL`, tasksCompleted, errorsCount, id)
	if err != nil {
		return fmt.Errorf("record training progress: %w", err)
	}
	return requireRow(res)
}

// CompleteTrainingSession closes a training session with its evidence.
// PromotedToIntern is a recommendation only; the maturity mutation
// happens in the external agent registry.
func (s *Store) CompleteTrainingSession(ctx context.Context, id string, score float64, promoted bool, caps, gaps []string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE training_sessions
   SET status = ?, performance_score = ?, promoted_to_intern = ?,
       capabilities_developed = ?, capability_gaps_remaining = ?, completed_at = ?
 WHERE id = ? AND completed_at IS NULL`,
		string(model.TrainingCompleted), score, boolInt(promoted),
		marshalList(caps), marshalList(gaps), unix(now), id)
	if err != nil {
		return fmt.Errorf("complete training session: %w", err)
	}
	return requireRow(res)
}

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func unmarshalList(data string) []string {
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil || list == nil {
		return []string{}
	}
	return list
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
