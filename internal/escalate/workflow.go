// Package escalate turns blocked triggers into human-involved
// follow-ups: a live supervision session for agents already partway up
// the ladder, or a proposal-gated training session for the rest. The
// workflow records evidence and recommendations only; it never changes
// an agent's maturity itself.
package escalate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/store"
)

// Workflow drives trigger routing and the two resolution paths.
type Workflow struct {
	store *store.Store
	newID func() string
	now   func() time.Time
}

// New creates a Workflow over the given store.
func New(st *store.Store) *Workflow {
	return &Workflow{store: st, newID: uuid.NewString, now: time.Now}
}

// Route decides and records where an unresolved trigger goes. Agents
// blocked at supervised or above already work alongside a human, so
// the fix is a supervision session; agents lower on the ladder need to
// earn the capability through a proposal and training.
func (w *Workflow) Route(ctx context.Context, triggerID string) (model.RoutingDecision, error) {
	t, err := w.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return model.RouteUnrouted, err
	}
	if t.Resolved {
		return model.RouteUnrouted, fmt.Errorf("escalate: trigger %s already resolved", triggerID)
	}
	if t.RoutingDecision != model.RouteUnrouted {
		return t.RoutingDecision, nil
	}

	routing := model.RouteTraining
	if t.MaturityAtBlock.Satisfies(maturity.Supervised) {
		routing = model.RouteSupervision
	}
	if err := w.store.SetTriggerRouting(ctx, triggerID, routing); err != nil {
		return model.RouteUnrouted, err
	}
	return routing, nil
}

// OpenSupervision starts a supervision session for a trigger routed to
// supervision.
func (w *Workflow) OpenSupervision(ctx context.Context, triggerID string) (*model.SupervisionSession, error) {
	t, err := w.store.GetTrigger(ctx, triggerID)
	if err != nil {
		return nil, err
	}
	if t.Resolved {
		return nil, fmt.Errorf("escalate: trigger %s already resolved", triggerID)
	}
	if t.RoutingDecision != model.RouteSupervision {
		return nil, fmt.Errorf("escalate: trigger %s routed to %q, not supervision", triggerID, t.RoutingDecision)
	}

	sess := &model.SupervisionSession{
		ID:        w.newID(),
		AgentID:   t.AgentID,
		TriggerID: t.ID,
		CreatedAt: w.now().UTC(),
	}
	if err := w.store.InsertSupervisionSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// CloseSupervision completes a supervision session and resolves the
// trigger behind it. ConfidenceBoost is a recommendation for the agent
// registry, not an applied change.
func (w *Workflow) CloseSupervision(ctx context.Context, sessionID, outcomes string, rating int, boost float64) error {
	sess, err := w.store.GetSupervisionSession(ctx, sessionID)
	if err != nil {
		return err
	}
	now := w.now().UTC()
	if err := w.store.CompleteSupervisionSession(ctx, sessionID, outcomes, rating, boost, now); err != nil {
		return err
	}
	if sess.TriggerID == "" {
		return nil
	}
	return w.store.ResolveTrigger(ctx, sess.TriggerID, "supervision session "+sessionID+" completed", now)
}

// ProposalRequest is the agent's structured ask for a capability it
// was blocked from.
type ProposalRequest struct {
	AgentID                string
	ProposalType           string
	ProposedAction         string
	LearningObjectives     []string
	CapabilityGaps         []string
	EstimatedDurationHours float64
}

// SubmitProposal records a new proposal in proposed state.
func (w *Workflow) SubmitProposal(ctx context.Context, req ProposalRequest) (*model.AgentProposal, error) {
	if req.AgentID == "" || req.ProposedAction == "" {
		return nil, fmt.Errorf("escalate: agent id and proposed action are required")
	}
	now := w.now().UTC()
	p := &model.AgentProposal{
		ID:                     w.newID(),
		AgentID:                req.AgentID,
		ProposalType:           req.ProposalType,
		ProposedAction:         req.ProposedAction,
		LearningObjectives:     req.LearningObjectives,
		CapabilityGaps:         req.CapabilityGaps,
		EstimatedDurationHours: req.EstimatedDurationHours,
		Status:                 model.ProposalProposed,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := w.store.InsertProposal(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ApproveProposal moves a proposal to approved and opens the training
// session it funds.
func (w *Workflow) ApproveProposal(ctx context.Context, proposalID, approver string, totalTasks int) (*model.TrainingSession, error) {
	p, err := w.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.ProposalProposed {
		return nil, fmt.Errorf("escalate: proposal %s is %s, not proposed", proposalID, p.Status)
	}

	now := w.now().UTC()
	if err := w.store.SetProposalStatus(ctx, proposalID, model.ProposalApproved, approver, now); err != nil {
		return nil, err
	}
	ts := &model.TrainingSession{
		ID:         w.newID(),
		ProposalID: p.ID,
		AgentID:    p.AgentID,
		Status:     model.TrainingActive,
		TotalTasks: totalTasks,
		CreatedAt:  now,
	}
	if err := w.store.InsertTrainingSession(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// RejectProposal closes a proposal without training.
func (w *Workflow) RejectProposal(ctx context.Context, proposalID string) error {
	p, err := w.store.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if p.Status != model.ProposalProposed {
		return fmt.Errorf("escalate: proposal %s is %s, not proposed", proposalID, p.Status)
	}
	return w.store.SetProposalStatus(ctx, proposalID, model.ProposalRejected, "", w.now().UTC())
}

// TrainingOutcome is the evidence a finished curriculum produced.
type TrainingOutcome struct {
	PerformanceScore        float64
	PromotedToIntern        bool
	CapabilitiesDeveloped   []string
	CapabilityGapsRemaining []string
}

// CompleteTraining closes a training session and marks its proposal
// completed. PromotedToIntern is passed through as a recommendation
// for the agent registry.
func (w *Workflow) CompleteTraining(ctx context.Context, sessionID string, outcome TrainingOutcome) error {
	ts, err := w.store.GetTrainingSession(ctx, sessionID)
	if err != nil {
		return err
	}
	now := w.now().UTC()
	err = w.store.CompleteTrainingSession(ctx, sessionID, outcome.PerformanceScore,
		outcome.PromotedToIntern, outcome.CapabilitiesDeveloped, outcome.CapabilityGapsRemaining, now)
	if err != nil {
		return err
	}
	return w.store.SetProposalStatus(ctx, ts.ProposalID, model.ProposalCompleted, "", now)
}
