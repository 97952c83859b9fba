// Package governance is the decision engine: it turns (agent, action,
// complexity) into an allow/deny decision using the maturity ladder,
// memoizing hot decisions and recording every denial as a blocked
// trigger for the escalation workflow.
package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/warden/internal/govcache"
	"github.com/avoronkov/warden/internal/identity"
	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
)

// TriggerSink receives the blocked-trigger record created for each
// denial. *store.Store satisfies it; a nil sink disables recording.
type TriggerSink interface {
	InsertTrigger(ctx context.Context, t *model.BlockedTriggerContext) error
}

// confidencer is the optional registry extension that exposes the
// agent's confidence score for block-time snapshots.
type confidencer interface {
	Confidence(agentID string) float64
}

// Service computes permission decisions.
type Service struct {
	registry identity.Registry
	cache    *govcache.Cache
	ttl      time.Duration
	triggers TriggerSink
	now      func() time.Time
	newID    func() string
}

// New wires the decision engine. triggers may be nil.
func New(registry identity.Registry, cache *govcache.Cache, triggers TriggerSink) *Service {
	return &Service{
		registry: registry,
		cache:    cache,
		ttl:      govcache.DefaultTTL,
		triggers: triggers,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetTTL overrides the decision cache TTL.
func (s *Service) SetTTL(ttl time.Duration) { s.ttl = ttl }

// Invalidate drops cached decisions for one agent, e.g. after the
// registry reports a maturity change.
func (s *Service) Invalidate(agentID string) { s.cache.Invalidate(agentID) }

// CanPerformAction decides whether agentID may perform actionType on
// an optional resourceType at the given complexity. Complexity raises
// the required rung per band; resourceType scopes the cache entry and
// is carried into the denial record.
//
// When the agent registry is unreachable the decision degrades:
// read-only actions are allowed, everything else is denied, and the
// degraded decision is never cached. Unknown action types and unknown
// agents are always denied.
func (s *Service) CanPerformAction(ctx context.Context, agentID, actionType, resourceType string, complexity int) (model.PermissionDecision, error) {
	if agentID == "" {
		return model.PermissionDecision{}, errors.New("governance: empty agent id")
	}
	if complexity < 1 {
		complexity = 1
	}

	spec, known := maturity.Lookup(actionType)
	if !known {
		return model.PermissionDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("unknown action type %q", actionType),
		}, nil
	}

	// Complexity and resource scope change the decision, so both are
	// part of the key.
	cacheKey := fmt.Sprintf("%s\x00%s\x00%d", actionType, resourceType, complexity)
	if d, ok := s.cache.Get(agentID, cacheKey); ok {
		return d, nil
	}

	level, err := s.registry.Maturity(ctx, agentID)
	switch {
	case errors.Is(err, identity.ErrUnavailable):
		return s.degraded(spec, actionType), nil
	case errors.Is(err, identity.ErrUnknownAgent):
		return model.PermissionDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("agent %q is not registered", agentID),
		}, nil
	case err != nil:
		return model.PermissionDecision{}, fmt.Errorf("resolve maturity: %w", err)
	}

	required := maturity.RequiredLevel(spec.MinLevel, complexity)
	d := model.PermissionDecision{
		Allowed: level.Satisfies(required),
		Level:   level,
	}
	if d.Allowed {
		d.SuggestOnly = !level.Satisfies(maturity.Autonomous)
		d.Reason = fmt.Sprintf("%s satisfies %s required for %s", level, required, actionType)
	} else {
		d.Reason = fmt.Sprintf("%s requires %s, agent is %s", actionType, required, level)
		s.recordBlock(ctx, agentID, actionType, resourceType, complexity, level, d.Reason)
	}

	s.cache.Set(agentID, cacheKey, d, s.ttl)
	return d, nil
}

// degraded builds the backend-down decision: fail open for read-only
// actions, fail closed for anything mutating.
func (s *Service) degraded(spec maturity.ActionSpec, actionType string) model.PermissionDecision {
	d := model.PermissionDecision{Degraded: true}
	if spec.ReadOnly {
		d.Allowed = true
		d.SuggestOnly = true
		d.Reason = fmt.Sprintf("registry unavailable; %s is read-only, allowing", actionType)
	} else {
		d.Reason = fmt.Sprintf("registry unavailable; %s mutates state, denying", actionType)
	}
	return d
}

func (s *Service) recordBlock(ctx context.Context, agentID, actionType, resourceType string, complexity int, level maturity.Level, reason string) {
	if s.triggers == nil {
		return
	}
	var confidence float64
	if c, ok := s.registry.(confidencer); ok {
		confidence = c.Confidence(agentID)
	}
	fields := map[string]any{
		"action_type": actionType,
		"complexity":  complexity,
	}
	if resourceType != "" {
		fields["resource_type"] = resourceType
	}
	triggerCtx, _ := json.Marshal(fields)
	// Trigger recording is best-effort; a failed insert must not turn a
	// clean denial into an error.
	_ = s.triggers.InsertTrigger(ctx, &model.BlockedTriggerContext{
		ID:                     s.newID(),
		AgentID:                agentID,
		MaturityAtBlock:        level,
		ConfidenceScoreAtBlock: confidence,
		TriggerSource:          "governance",
		TriggerType:            actionType,
		TriggerContext:         string(triggerCtx),
		BlockReason:            reason,
		CreatedAt:              s.now(),
	})
}
