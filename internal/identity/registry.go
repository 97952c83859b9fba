// Package identity exposes the agent-registry collaborator the
// governance core consumes. The registry is the source of truth for a
// verified agent's current maturity; promotion happens there, never in
// this module.
package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/avoronkov/warden/internal/maturity"
)

// ErrUnknownAgent is returned for agent IDs the registry has never seen.
var ErrUnknownAgent = errors.New("identity: unknown agent")

// ErrUnavailable signals the registry backend cannot be reached.
// Governance fails closed on it for mutating actions.
var ErrUnavailable = errors.New("identity: registry unavailable")

// Registry resolves a verified agent identity to its current maturity.
type Registry interface {
	Maturity(ctx context.Context, agentID string) (maturity.Level, error)
}

// AgentRecord is one registered agent.
type AgentRecord struct {
	Level           maturity.Level `yaml:"maturity" json:"maturity"`
	ConfidenceScore float64        `yaml:"confidence_score" json:"confidence_score"`
}

// StaticRegistry is an in-memory Registry used by the CLI, the MCP
// server, and tests. Production deployments substitute the real agent
// registry behind the same interface.
type StaticRegistry struct {
	mu     sync.RWMutex
	agents map[string]AgentRecord
	down   bool
}

// NewStatic creates a registry from a map of agent records.
func NewStatic(agents map[string]AgentRecord) *StaticRegistry {
	if agents == nil {
		agents = make(map[string]AgentRecord)
	}
	return &StaticRegistry{agents: agents}
}

// Maturity implements Registry.
func (r *StaticRegistry) Maturity(_ context.Context, agentID string) (maturity.Level, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.down {
		return maturity.Student, ErrUnavailable
	}
	rec, ok := r.agents[agentID]
	if !ok {
		return maturity.Student, ErrUnknownAgent
	}
	return rec.Level, nil
}

// Confidence returns the agent's current confidence score, used when
// recording the state of the world at block time.
func (r *StaticRegistry) Confidence(agentID string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[agentID].ConfidenceScore
}

// Set registers or updates an agent record.
func (r *StaticRegistry) Set(agentID string, rec AgentRecord) {
	r.mu.Lock()
	r.agents[agentID] = rec
	r.mu.Unlock()
}

// SetAvailable toggles simulated backend availability. Tests use this
// to exercise the fail-closed path.
func (r *StaticRegistry) SetAvailable(up bool) {
	r.mu.Lock()
	r.down = !up
	r.mu.Unlock()
}
