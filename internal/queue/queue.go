// Package queue layers the supervised execution workflow over the
// durable store: enqueue with defaults, atomic claim, a bounded worker
// pool, and a periodic expiry sweep. Anything an agent may not do
// directly lands here and waits for a supervisor-approved execution.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/store"
)

// Enqueue defaults.
const (
	DefaultMaxAttempts = 3
	DefaultTTL         = 24 * time.Hour
)

// Request describes work to enqueue.
type Request struct {
	AgentID          string
	UserID           string
	TriggerType      string
	ExecutionContext string
	SupervisorType   string
	Priority         int
	MaxAttempts      int
	TTL              time.Duration
}

// Queue is the enqueue/claim/cancel surface over the store.
type Queue struct {
	store *store.Store
	newID func() string
	now   func() time.Time
}

// New creates a Queue backed by the given store.
func New(st *store.Store) *Queue {
	return &Queue{store: st, newID: uuid.NewString, now: time.Now}
}

// Enqueue persists a new pending entry, applying retry and TTL
// defaults.
func (q *Queue) Enqueue(ctx context.Context, req Request) (*model.QueueEntry, error) {
	if req.AgentID == "" || req.TriggerType == "" {
		return nil, fmt.Errorf("queue: agent id and trigger type are required")
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = DefaultMaxAttempts
	}
	if req.TTL <= 0 {
		req.TTL = DefaultTTL
	}

	now := q.now().UTC()
	e := &model.QueueEntry{
		ID:               q.newID(),
		AgentID:          req.AgentID,
		UserID:           req.UserID,
		TriggerType:      req.TriggerType,
		ExecutionContext: req.ExecutionContext,
		Status:           model.QueuePending,
		SupervisorType:   req.SupervisorType,
		Priority:         req.Priority,
		MaxAttempts:      req.MaxAttempts,
		ExpiresAt:        now.Add(req.TTL),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := q.store.InsertQueueEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ClaimNext claims the best pending entry, or store.ErrNotFound when
// nothing is claimable.
func (q *Queue) ClaimNext(ctx context.Context) (*model.QueueEntry, error) {
	return q.store.ClaimNext(ctx, q.now())
}

// Cancel transitions a non-terminal entry to cancelled.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	return q.store.CancelEntry(ctx, id, q.now())
}

// Get fetches one entry.
func (q *Queue) Get(ctx context.Context, id string) (*model.QueueEntry, error) {
	return q.store.GetQueueEntry(ctx, id)
}

// List returns entries filtered by status; empty status means all.
func (q *Queue) List(ctx context.Context, status model.QueueStatus) ([]*model.QueueEntry, error) {
	return q.store.ListQueueEntries(ctx, status)
}

// ExpireStale sweeps entries past their deadline into failed.
func (q *Queue) ExpireStale(ctx context.Context) (int64, error) {
	return q.store.ExpireStale(ctx, q.now())
}
