package model

import (
	"time"

	"github.com/avoronkov/warden/internal/maturity"
)

// QueueStatus is the lifecycle state of a supervised execution entry.
type QueueStatus string

const (
	QueuePending   QueueStatus = "pending"
	QueueExecuting QueueStatus = "executing"
	QueueCompleted QueueStatus = "completed"
	QueueFailed    QueueStatus = "failed"
	QueueCancelled QueueStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s QueueStatus) Terminal() bool {
	return s == QueueCompleted || s == QueueFailed || s == QueueCancelled
}

// QueueEntry is one durable unit of supervised work. Lifecycle:
// pending → executing (exactly one claimant) → completed|failed, with
// requeue to pending while the retry budget lasts. Expiry always wins
// over the retry budget.
type QueueEntry struct {
	ID               string      `json:"id"`
	AgentID          string      `json:"agent_id"`
	UserID           string      `json:"user_id"`
	TriggerType      string      `json:"trigger_type"`
	ExecutionContext string      `json:"execution_context"`
	Status           QueueStatus `json:"status"`
	SupervisorType   string      `json:"supervisor_type"`
	Priority         int         `json:"priority"`
	MaxAttempts      int         `json:"max_attempts"`
	AttemptCount     int         `json:"attempt_count"`
	ExpiresAt        time.Time   `json:"expires_at"`
	ExecutionID      string      `json:"execution_id,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RoutingDecision says where a blocked trigger was escalated.
type RoutingDecision string

const (
	RouteUnrouted    RoutingDecision = ""
	RouteSupervision RoutingDecision = "supervision"
	RouteTraining    RoutingDecision = "training"
)

// BlockedTriggerContext records one governance denial, created
// synchronously at denial time and resolved asynchronously by the
// escalation workflow.
type BlockedTriggerContext struct {
	ID                     string          `json:"id"`
	AgentID                string          `json:"agent_id"`
	MaturityAtBlock        maturity.Level  `json:"maturity_at_block"`
	ConfidenceScoreAtBlock float64         `json:"confidence_score_at_block"`
	TriggerSource          string          `json:"trigger_source"`
	TriggerType            string          `json:"trigger_type"`
	TriggerContext         string          `json:"trigger_context,omitempty"`
	RoutingDecision        RoutingDecision `json:"routing_decision,omitempty"`
	BlockReason            string          `json:"block_reason"`
	Resolved               bool            `json:"resolved"`
	ResolvedAt             *time.Time      `json:"resolved_at,omitempty"`
	ResolutionOutcome      string          `json:"resolution_outcome,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
}

// SupervisionSession is a live human-overseen window of agent activity
// tied to a blocked trigger. Terminal once CompletedAt is set.
type SupervisionSession struct {
	ID                string     `json:"id"`
	AgentID           string     `json:"agent_id"`
	TriggerID         string     `json:"trigger_id,omitempty"`
	InterventionCount int        `json:"intervention_count"`
	Interventions     []string   `json:"interventions"`
	AgentActions      []string   `json:"agent_actions"`
	Outcomes          string     `json:"outcomes,omitempty"`
	SupervisorRating  int        `json:"supervisor_rating"`
	ConfidenceBoost   float64    `json:"confidence_boost"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// ProposalStatus is the lifecycle state of an agent proposal.
type ProposalStatus string

const (
	ProposalProposed  ProposalStatus = "proposed"
	ProposalApproved  ProposalStatus = "approved"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalCompleted ProposalStatus = "completed"
)

// AgentProposal is a structured ask for a duration-bounded autonomy
// expansion, reviewed by a human before any training begins.
type AgentProposal struct {
	ID                     string         `json:"id"`
	AgentID                string         `json:"agent_id"`
	ProposalType           string         `json:"proposal_type"`
	ProposedAction         string         `json:"proposed_action"`
	LearningObjectives     []string       `json:"learning_objectives"`
	CapabilityGaps         []string       `json:"capability_gaps"`
	EstimatedDurationHours float64        `json:"estimated_duration_hours"`
	Status                 ProposalStatus `json:"status"`
	ApprovedBy             string         `json:"approved_by,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// TrainingStatus is the lifecycle state of a training session.
type TrainingStatus string

const (
	TrainingActive    TrainingStatus = "active"
	TrainingCompleted TrainingStatus = "completed"
	TrainingAbandoned TrainingStatus = "abandoned"
)

// TrainingSession is a bounded curriculum spawned from an approved
// proposal. PromotedToIntern is a recommendation for the external
// promotion decision, never an automatic maturity mutation.
type TrainingSession struct {
	ID                      string         `json:"id"`
	ProposalID              string         `json:"proposal_id"`
	AgentID                 string         `json:"agent_id"`
	Status                  TrainingStatus `json:"status"`
	TasksCompleted          int            `json:"tasks_completed"`
	TotalTasks              int            `json:"total_tasks"`
	PerformanceScore        float64        `json:"performance_score"`
	ErrorsCount             int            `json:"errors_count"`
	PromotedToIntern        bool           `json:"promoted_to_intern"`
	CapabilitiesDeveloped   []string       `json:"capabilities_developed"`
	CapabilityGapsRemaining []string       `json:"capability_gaps_remaining"`
	CreatedAt               time.Time      `json:"created_at"`
	CompletedAt             *time.Time     `json:"completed_at,omitempty"`
}
