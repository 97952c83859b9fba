// Package model holds the shared record and decision types the
// governance core passes between packages and persists.
package model

import (
	"time"

	"github.com/avoronkov/warden/internal/maturity"
)

// PermissionDecision is the outcome of an authorization check.
// Immutable once computed; safe to cache unless Degraded is set.
type PermissionDecision struct {
	Allowed bool `json:"allowed"`
	// SuggestOnly means the agent may only propose this action for
	// human approval, never execute it directly. True for every level
	// below autonomous.
	SuggestOnly  bool           `json:"suggest_only"`
	Reason       string         `json:"reason"`
	Level        maturity.Level `json:"maturity_level"`
	ResolvedPath string         `json:"resolved_path,omitempty"`
	// Degraded marks a decision computed while a backend was
	// unreachable. Degraded decisions are never cached.
	Degraded bool `json:"degraded,omitempty"`
}

// ShellExecutionSession is the append-only audit record for one spawned
// process. Written exactly once per spawn, whether the process
// succeeds, fails, or is killed on timeout. Denials never produce one.
type ShellExecutionSession struct {
	ID               string    `json:"id"`
	AgentID          string    `json:"agent_id"`
	Command          string    `json:"command"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
	ExitCode         int       `json:"exit_code"`
	Stdout           string    `json:"stdout,omitempty"`
	Stderr           string    `json:"stderr,omitempty"`
	TimedOut         bool      `json:"timed_out"`
	DurationSeconds  float64   `json:"duration_seconds"`
	ExecutedAt       time.Time `json:"executed_at"`
}

// OutboxEvent is a pending state-change announcement, written in the
// same transaction as the change it describes and published later by
// an independent drain worker.
type OutboxEvent struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
