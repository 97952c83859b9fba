package escalate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/store"
)

func testWorkflow(t *testing.T) (*Workflow, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "escalate.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func insertTrigger(t *testing.T, st *store.Store, id string, level maturity.Level) {
	t.Helper()
	err := st.InsertTrigger(context.Background(), &model.BlockedTriggerContext{
		ID:              id,
		AgentID:         "agent-1",
		MaturityAtBlock: level,
		TriggerSource:   "governance",
		TriggerType:     "shell_execute",
		BlockReason:     "below required level",
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert trigger: %v", err)
	}
}

func TestRouteByMaturity(t *testing.T) {
	w, st := testWorkflow(t)
	ctx := context.Background()

	insertTrigger(t, st, "t-sup", maturity.Supervised)
	insertTrigger(t, st, "t-stu", maturity.Student)

	routing, err := w.Route(ctx, "t-sup")
	if err != nil {
		t.Fatalf("route supervised: %v", err)
	}
	if routing != model.RouteSupervision {
		t.Errorf("supervised agent routed to %q", routing)
	}

	routing, err = w.Route(ctx, "t-stu")
	if err != nil {
		t.Fatalf("route student: %v", err)
	}
	if routing != model.RouteTraining {
		t.Errorf("student agent routed to %q", routing)
	}

	// Routing is sticky.
	routing, err = w.Route(ctx, "t-sup")
	if err != nil || routing != model.RouteSupervision {
		t.Errorf("re-route: %q, %v", routing, err)
	}
}

func TestSupervisionPathResolvesTrigger(t *testing.T) {
	w, st := testWorkflow(t)
	ctx := context.Background()

	insertTrigger(t, st, "t1", maturity.Supervised)
	if _, err := w.Route(ctx, "t1"); err != nil {
		t.Fatalf("route: %v", err)
	}

	sess, err := w.OpenSupervision(ctx, "t1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.AgentID != "agent-1" || sess.TriggerID != "t1" {
		t.Errorf("session: %+v", sess)
	}

	if err := st.AppendIntervention(ctx, sess.ID, "corrected the command"); err != nil {
		t.Fatalf("intervention: %v", err)
	}
	if err := w.CloseSupervision(ctx, sess.ID, "agent handled it after one correction", 4, 0.05); err != nil {
		t.Fatalf("close: %v", err)
	}

	tr, err := st.GetTrigger(ctx, "t1")
	if err != nil {
		t.Fatalf("get trigger: %v", err)
	}
	if !tr.Resolved || tr.ResolvedAt == nil {
		t.Errorf("trigger after close: %+v", tr)
	}

	// A resolved trigger cannot spawn another session.
	if _, err := w.OpenSupervision(ctx, "t1"); err == nil {
		t.Error("opened supervision on resolved trigger")
	}
}

func TestOpenSupervisionRequiresRouting(t *testing.T) {
	w, st := testWorkflow(t)
	ctx := context.Background()

	insertTrigger(t, st, "t-stu", maturity.Student)
	if _, err := w.Route(ctx, "t-stu"); err != nil {
		t.Fatalf("route: %v", err)
	}
	if _, err := w.OpenSupervision(ctx, "t-stu"); err == nil {
		t.Error("opened supervision on training-routed trigger")
	}
}

func TestProposalTrainingPath(t *testing.T) {
	w, st := testWorkflow(t)
	ctx := context.Background()

	p, err := w.SubmitProposal(ctx, ProposalRequest{
		AgentID:                "agent-1",
		ProposalType:           "capability_expansion",
		ProposedAction:         "manage integration sync",
		LearningObjectives:     []string{"understand sync conflicts"},
		CapabilityGaps:         []string{"integration_sync"},
		EstimatedDurationHours: 8,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if p.Status != model.ProposalProposed {
		t.Errorf("proposal status: %s", p.Status)
	}

	ts, err := w.ApproveProposal(ctx, p.ID, "reviewer-1", 10)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ts.Status != model.TrainingActive || ts.ProposalID != p.ID || ts.TotalTasks != 10 {
		t.Errorf("training session: %+v", ts)
	}
	got, _ := st.GetProposal(ctx, p.ID)
	if got.Status != model.ProposalApproved || got.ApprovedBy != "reviewer-1" {
		t.Errorf("proposal after approval: %+v", got)
	}

	// Approval is single-shot.
	if _, err := w.ApproveProposal(ctx, p.ID, "reviewer-2", 5); err == nil {
		t.Error("approved twice")
	}

	if err := st.RecordTrainingProgress(ctx, ts.ID, 10, 1); err != nil {
		t.Fatalf("progress: %v", err)
	}
	err = w.CompleteTraining(ctx, ts.ID, TrainingOutcome{
		PerformanceScore:      0.85,
		PromotedToIntern:      true,
		CapabilitiesDeveloped: []string{"integration_sync"},
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	doneTS, _ := st.GetTrainingSession(ctx, ts.ID)
	if doneTS.Status != model.TrainingCompleted || !doneTS.PromotedToIntern || doneTS.CompletedAt == nil {
		t.Errorf("training after completion: %+v", doneTS)
	}
	doneP, _ := st.GetProposal(ctx, p.ID)
	if doneP.Status != model.ProposalCompleted {
		t.Errorf("proposal after training: %s", doneP.Status)
	}
}

func TestRejectProposal(t *testing.T) {
	w, st := testWorkflow(t)
	ctx := context.Background()

	p, err := w.SubmitProposal(ctx, ProposalRequest{AgentID: "agent-1", ProposedAction: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := w.RejectProposal(ctx, p.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := st.GetProposal(ctx, p.ID)
	if got.Status != model.ProposalRejected {
		t.Errorf("status: %s", got.Status)
	}
	if _, err := w.ApproveProposal(ctx, p.ID, "reviewer", 1); err == nil {
		t.Error("approved a rejected proposal")
	}
}
