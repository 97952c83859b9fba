package store

import (
	"context"
	"fmt"

	"github.com/avoronkov/warden/internal/model"
)

// AppendShellSession persists one execution audit record. Append-only:
// there is no update or delete path for shell sessions.
func (s *Store) AppendShellSession(ctx context.Context, sess *model.ShellExecutionSession) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO shell_sessions
    (id, agent_id, command, working_directory, exit_code, stdout, stderr,
     timed_out, duration_seconds, executed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AgentID, sess.Command, sess.WorkingDirectory, sess.ExitCode,
		sess.Stdout, sess.Stderr, boolInt(sess.TimedOut), sess.DurationSeconds,
		unix(sess.ExecutedAt))
	if err != nil {
		return fmt.Errorf("append shell session: %w", err)
	}
	return nil
}

// ListShellSessions returns an agent's execution history, newest first.
func (s *Store) ListShellSessions(ctx context.Context, agentID string) ([]*model.ShellExecutionSession, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, agent_id, command, working_directory, exit_code, stdout, stderr,
       timed_out, duration_seconds, executed_at
  FROM shell_sessions WHERE agent_id = ? ORDER BY executed_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.ShellExecutionSession
	for rows.Next() {
		var (
			sess     model.ShellExecutionSession
			timedOut int
			executed int64
		)
		if err := rows.Scan(&sess.ID, &sess.AgentID, &sess.Command, &sess.WorkingDirectory,
			&sess.ExitCode, &sess.Stdout, &sess.Stderr, &timedOut,
			&sess.DurationSeconds, &executed); err != nil {
			return nil, err
		}
		sess.TimedOut = timedOut == 1
		sess.ExecutedAt = fromUnix(executed)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}
