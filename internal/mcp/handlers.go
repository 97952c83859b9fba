package mcp

import (
	"context"
	"errors"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/queue"
	"github.com/avoronkov/warden/internal/shell"
)

// CheckInput defines parameters for the warden_check tool.
type CheckInput struct {
	AgentID      string `json:"agent_id" jsonschema:"agent identity"`
	ActionType   string `json:"action_type" jsonschema:"action type to check"`
	ResourceType string `json:"resource_type,omitempty" jsonschema:"resource scope"`
	Complexity   int    `json:"complexity,omitempty" jsonschema:"task complexity 1-5"`
}

// CheckOutput contains the governance decision.
type CheckOutput struct {
	Allowed     bool   `json:"allowed"`
	SuggestOnly bool   `json:"suggest_only,omitempty"`
	Reason      string `json:"reason"`
	Level       string `json:"maturity_level,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// ExecInput defines parameters for the warden_exec tool.
type ExecInput struct {
	AgentID        string `json:"agent_id" jsonschema:"agent identity"`
	Command        string `json:"command" jsonschema:"command line to execute (tokenized, no shell)"`
	WorkingDir     string `json:"working_dir,omitempty" jsonschema:"working directory"`
	Complexity     int    `json:"complexity,omitempty" jsonschema:"task complexity 1-5"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"execution timeout"`
}

// ExecOutput contains the execution result or denial details.
type ExecOutput struct {
	SessionID string  `json:"session_id,omitempty"`
	Stdout    string  `json:"stdout,omitempty"`
	Stderr    string  `json:"stderr,omitempty"`
	ExitCode  int     `json:"exit_code"`
	TimedOut  bool    `json:"timed_out,omitempty"`
	Duration  float64 `json:"duration_seconds,omitempty"`
	Blocked   bool    `json:"blocked,omitempty"`
	Stage     string  `json:"stage,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// DirCheckInput defines parameters for the warden_dir_check tool.
type DirCheckInput struct {
	AgentID   string `json:"agent_id" jsonschema:"agent identity"`
	Directory string `json:"directory" jsonschema:"directory to check"`
}

// DirCheckOutput contains the directory decision.
type DirCheckOutput struct {
	Allowed      bool   `json:"allowed"`
	SuggestOnly  bool   `json:"suggest_only,omitempty"`
	Reason       string `json:"reason"`
	ResolvedPath string `json:"resolved_path,omitempty"`
}

// EnqueueInput defines parameters for the warden_enqueue tool.
type EnqueueInput struct {
	AgentID          string `json:"agent_id" jsonschema:"agent identity"`
	UserID           string `json:"user_id,omitempty" jsonschema:"requesting user"`
	TriggerType      string `json:"trigger_type" jsonschema:"action type to execute under supervision"`
	ExecutionContext string `json:"execution_context,omitempty" jsonschema:"JSON execution context"`
	Priority         int    `json:"priority,omitempty" jsonschema:"higher runs first"`
	MaxAttempts      int    `json:"max_attempts,omitempty" jsonschema:"retry budget"`
	TTLSeconds       int    `json:"ttl_seconds,omitempty" jsonschema:"entry lifetime"`
}

// EnqueueOutput identifies the created entry.
type EnqueueOutput struct {
	EntryID   string `json:"entry_id"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

// PendingInput filters the entry listing.
type PendingInput struct {
	Status string `json:"status,omitempty" jsonschema:"pending/executing/completed/failed/cancelled, empty for all"`
}

// PendingOutput lists queue entries.
type PendingOutput struct {
	Entries []PendingItem `json:"entries"`
}

// PendingItem summarizes one queue entry.
type PendingItem struct {
	EntryID     string `json:"entry_id"`
	AgentID     string `json:"agent_id"`
	TriggerType string `json:"trigger_type"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	Attempts    int    `json:"attempts"`
	ExpiresAt   string `json:"expires_at"`
}

// ResolveInput defines parameters for the warden_resolve tool.
type ResolveInput struct {
	TriggerID string `json:"trigger_id" jsonschema:"blocked trigger to route"`
}

// ResolveOutput reports where the trigger went.
type ResolveOutput struct {
	TriggerID string `json:"trigger_id"`
	Routing   string `json:"routing"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleCheck(ctx context.Context, _ *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	d, err := s.deps.Gov.CanPerformAction(ctx, input.AgentID, input.ActionType, input.ResourceType, input.Complexity)
	if err != nil {
		return nil, CheckOutput{}, err
	}
	out := CheckOutput{
		Allowed:     d.Allowed,
		SuggestOnly: d.SuggestOnly,
		Reason:      d.Reason,
		Degraded:    d.Degraded,
	}
	if !d.Degraded {
		out.Level = d.Level.String()
	}
	return nil, out, nil
}

func (s *Server) handleExec(ctx context.Context, _ *mcpsdk.CallToolRequest, input ExecInput) (*mcpsdk.CallToolResult, ExecOutput, error) {
	sess, err := s.deps.Shell.Execute(ctx, shell.Request{
		AgentID:    input.AgentID,
		Command:    input.Command,
		WorkingDir: input.WorkingDir,
		Complexity: input.Complexity,
		Timeout:    time.Duration(input.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		var perr *shell.PermissionError
		if errors.As(err, &perr) {
			out := ExecOutput{Blocked: true, Stage: perr.Stage, Reason: perr.Reason}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, ExecOutput{}, err
	}

	return nil, ExecOutput{
		SessionID: sess.ID,
		Stdout:    sess.Stdout,
		Stderr:    sess.Stderr,
		ExitCode:  sess.ExitCode,
		TimedOut:  sess.TimedOut,
		Duration:  sess.DurationSeconds,
	}, nil
}

func (s *Server) handleDirCheck(ctx context.Context, _ *mcpsdk.CallToolRequest, input DirCheckInput) (*mcpsdk.CallToolResult, DirCheckOutput, error) {
	level, err := s.deps.Registry.Maturity(ctx, input.AgentID)
	if err != nil {
		return nil, DirCheckOutput{}, err
	}
	d, err := s.deps.Dirs.Resolve(input.AgentID, input.Directory, level)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, DirCheckOutput{Reason: err.Error()}, nil
	}
	return nil, DirCheckOutput{
		Allowed:      d.Allowed,
		SuggestOnly:  d.SuggestOnly,
		Reason:       d.Reason,
		ResolvedPath: d.ResolvedPath,
	}, nil
}

func (s *Server) handleEnqueue(ctx context.Context, _ *mcpsdk.CallToolRequest, input EnqueueInput) (*mcpsdk.CallToolResult, EnqueueOutput, error) {
	e, err := s.deps.Queue.Enqueue(ctx, queue.Request{
		AgentID:          input.AgentID,
		UserID:           input.UserID,
		TriggerType:      input.TriggerType,
		ExecutionContext: input.ExecutionContext,
		Priority:         input.Priority,
		MaxAttempts:      input.MaxAttempts,
		TTL:              time.Duration(input.TTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, EnqueueOutput{}, err
	}
	return nil, EnqueueOutput{
		EntryID:   e.ID,
		Status:    string(e.Status),
		ExpiresAt: e.ExpiresAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handlePending(ctx context.Context, _ *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	entries, err := s.deps.Queue.List(ctx, model.QueueStatus(input.Status))
	if err != nil {
		return nil, PendingOutput{}, err
	}
	out := PendingOutput{Entries: make([]PendingItem, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, PendingItem{
			EntryID:     e.ID,
			AgentID:     e.AgentID,
			TriggerType: e.TriggerType,
			Status:      string(e.Status),
			Priority:    e.Priority,
			Attempts:    e.AttemptCount,
			ExpiresAt:   e.ExpiresAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) handleResolve(ctx context.Context, _ *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	routing, err := s.deps.Escalate.Route(ctx, input.TriggerID)
	if err != nil {
		return nil, ResolveOutput{}, err
	}
	out := ResolveOutput{TriggerID: input.TriggerID, Routing: string(routing)}
	if routing == model.RouteSupervision {
		sess, err := s.deps.Escalate.OpenSupervision(ctx, input.TriggerID)
		if err != nil {
			return nil, ResolveOutput{}, err
		}
		out.SessionID = sess.ID
	}
	return nil, out, nil
}
