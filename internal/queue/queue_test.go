package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/avoronkov/warden/internal/govcache"
	"github.com/avoronkov/warden/internal/governance"
	"github.com/avoronkov/warden/internal/identity"
	"github.com/avoronkov/warden/internal/maturity"
	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/store"
)

type stubExecutor struct {
	calls int
	fail  int // fail the first N calls
}

func (e *stubExecutor) ExecuteEntry(_ context.Context, entry *model.QueueEntry) (string, error) {
	e.calls++
	if e.calls <= e.fail {
		return "", fmt.Errorf("attempt %d failed", e.calls)
	}
	return "exec-" + entry.ID, nil
}

func testQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func testGovernance(level maturity.Level) *governance.Service {
	reg := identity.NewStatic(map[string]identity.AgentRecord{
		"agent-1": {Level: level},
	})
	return governance.New(reg, govcache.New(), nil)
}

func TestEnqueueDefaults(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "write_memory"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if e.ID == "" || e.Status != model.QueuePending {
		t.Errorf("entry: %+v", e)
	}
	if e.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("max attempts = %d, want %d", e.MaxAttempts, DefaultMaxAttempts)
	}
	if until := time.Until(e.ExpiresAt); until < 23*time.Hour {
		t.Errorf("default TTL too short: %v", until)
	}

	if _, err := q.Enqueue(ctx, Request{}); err == nil {
		t.Error("enqueue without agent/trigger succeeded")
	}
}

func TestWorkerCompletesEntry(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "write_memory"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	exec := &stubExecutor{}
	w := NewWorker(q, testGovernance(maturity.Supervised), exec, 1)

	processed, err := w.ProcessNext(ctx)
	if err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	got, err := q.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.QueueCompleted || got.ExecutionID != "exec-"+e.ID {
		t.Errorf("after completion: %+v", got)
	}

	// Queue drained.
	processed, err = w.ProcessNext(ctx)
	if err != nil || processed {
		t.Errorf("drained queue: processed=%v err=%v", processed, err)
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "write_memory", MaxAttempts: 2})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	exec := &stubExecutor{fail: 10}
	w := NewWorker(q, testGovernance(maturity.Supervised), exec, 1)

	for i := 0; i < 2; i++ {
		if processed, err := w.ProcessNext(ctx); err != nil || !processed {
			t.Fatalf("attempt %d: processed=%v err=%v", i+1, processed, err)
		}
	}

	got, _ := q.Get(ctx, e.ID)
	if got.Status != model.QueueFailed || got.AttemptCount != 2 {
		t.Errorf("after budget exhaustion: %+v", got)
	}
	if exec.calls != 2 {
		t.Errorf("executor calls = %d, want 2", exec.calls)
	}
}

func TestWorkerGovernanceRecheck(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	// shell_execute requires autonomous; this agent is a student, so the
	// pre-execution re-check denies without ever calling the executor.
	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "shell_execute", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	exec := &stubExecutor{}
	w := NewWorker(q, testGovernance(maturity.Student), exec, 1)

	if processed, err := w.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("ProcessNext: processed=%v err=%v", processed, err)
	}
	if exec.calls != 0 {
		t.Fatalf("executor ran %d times despite denial", exec.calls)
	}
	got, _ := q.Get(ctx, e.ID)
	if got.Status != model.QueueFailed {
		t.Errorf("after denial: %+v", got)
	}
}

func TestWorkerBackendOutageKeepsRetryBudget(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "write_memory", MaxAttempts: 3})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	reg := identity.NewStatic(map[string]identity.AgentRecord{
		"agent-1": {Level: maturity.Supervised},
	})
	gov := governance.New(reg, govcache.New(), nil)
	reg.SetAvailable(false)

	exec := &stubExecutor{}
	w := NewWorker(q, gov, exec, 1)

	// Polls during the outage must not consume the retry budget: each
	// claim is released and the entry stays pending.
	for i := 0; i < 3; i++ {
		if processed, err := w.ProcessNext(ctx); err != nil || processed {
			t.Fatalf("poll %d: processed=%v err=%v", i+1, processed, err)
		}
	}
	if exec.calls != 0 {
		t.Fatalf("executor ran %d times during the outage", exec.calls)
	}
	got, _ := q.Get(ctx, e.ID)
	if got.Status != model.QueuePending || got.AttemptCount != 0 {
		t.Fatalf("after outage: status=%s attempts=%d, want pending/0", got.Status, got.AttemptCount)
	}

	// Once the registry recovers the same entry executes normally.
	reg.SetAvailable(true)
	if processed, err := w.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("after recovery: processed=%v err=%v", processed, err)
	}
	got, _ = q.Get(ctx, e.ID)
	if got.Status != model.QueueCompleted || got.AttemptCount != 1 {
		t.Errorf("after recovery: %+v", got)
	}
}

func TestCancelPendingEntry(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "write_memory"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Cancel(ctx, e.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := q.Get(ctx, e.ID)
	if got.Status != model.QueueCancelled {
		t.Errorf("after cancel: %s", got.Status)
	}
	if err := q.Cancel(ctx, e.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double cancel: got %v, want ErrNotFound", err)
	}
}

func TestExpireStaleSweep(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	// A nanosecond TTL truncates to the current second in storage, so
	// the entry is already at its deadline.
	e, err := q.Enqueue(ctx, Request{AgentID: "agent-1", TriggerType: "write_memory", TTL: time.Nanosecond})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := q.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	got, _ := q.Get(ctx, e.ID)
	if got.Status != model.QueueFailed || got.ErrorMessage != "expired" {
		t.Errorf("after sweep: %+v", got)
	}
}
