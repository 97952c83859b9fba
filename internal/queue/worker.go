package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avoronkov/warden/internal/governance"
	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/store"
)

// Executor performs the work described by a claimed entry and returns
// the execution ID that satisfied it.
type Executor interface {
	ExecuteEntry(ctx context.Context, e *model.QueueEntry) (executionID string, err error)
}

// Worker drains the queue with a bounded pool. Each claimed entry is
// re-checked against governance right before execution: an approval
// that was valid at enqueue time may have lapsed since.
type Worker struct {
	queue *Queue
	gov   *governance.Service
	exec  Executor

	concurrency   int
	pollInterval  time.Duration
	sweepInterval time.Duration
}

// NewWorker builds a worker pool. concurrency <= 0 defaults to 1.
func NewWorker(q *Queue, gov *governance.Service, exec Executor, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:         q,
		gov:           gov,
		exec:          exec,
		concurrency:   concurrency,
		pollInterval:  time.Second,
		sweepInterval: time.Minute,
	}
}

// Run blocks, processing entries until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error { return w.drainLoop(ctx) })
	}
	g.Go(func() error { return w.sweepLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) drainLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		for {
			processed, err := w.ProcessNext(ctx)
			if err != nil {
				log.Printf("queue: process: %v", err)
				break
			}
			if !processed {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := w.queue.ExpireStale(ctx); err != nil {
				log.Printf("queue: expire sweep: %v", err)
			} else if n > 0 {
				log.Printf("queue: expired %d stale entries", n)
			}
		}
	}
}

// ProcessNext claims and runs one entry. Returns false when the queue
// has nothing claimable.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	e, err := w.queue.ClaimNext(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if w.gov != nil {
		decision, err := w.gov.CanPerformAction(ctx, e.AgentID, e.TriggerType, "", 1)
		if err != nil {
			// Governance itself is down. Release the claim so the attempt
			// is refunded, and back off until the next poll; expiry still
			// bounds the entry's life.
			if relErr := w.queue.store.ReleaseEntry(ctx, e.ID, w.queue.now()); relErr != nil {
				return false, relErr
			}
			return false, fmt.Errorf("governance check: %w", err)
		}
		// SuggestOnly is fine here: queued work is the supervised path.
		if !decision.Allowed && decision.Degraded {
			// Backend outage: nothing ran, so the entry goes back to
			// pending with its attempt refunded rather than burning the
			// retry budget on work that was never tried.
			return false, w.queue.store.ReleaseEntry(ctx, e.ID, w.queue.now())
		}
		if !decision.Allowed {
			// A hard denial will not change on retry within this entry's
			// lifetime; the attempt still counts against the budget.
			_, failErr := w.queue.store.FailAttempt(ctx, e.ID, "governance denied: "+decision.Reason, w.queue.now())
			return true, failErr
		}
	}

	execID, execErr := w.exec.ExecuteEntry(ctx, e)
	if execErr != nil {
		status, failErr := w.queue.store.FailAttempt(ctx, e.ID, execErr.Error(), w.queue.now())
		if failErr != nil {
			return true, failErr
		}
		log.Printf("queue: entry %s attempt failed (%s): %v", e.ID, status, execErr)
		return true, nil
	}
	return true, w.queue.store.CompleteEntry(ctx, e.ID, execID, w.queue.now())
}
