// Package outbox publishes the event rows the store writes alongside
// state changes. Delivery is at-least-once: an event is marked
// published only after the notifier accepts it, so a crash between the
// two replays the event.
package outbox

import (
	"context"
	"log"
	"time"

	"github.com/avoronkov/warden/internal/model"
	"github.com/avoronkov/warden/internal/store"
)

// Notifier delivers one event to the outside world.
type Notifier interface {
	Notify(ctx context.Context, ev *model.OutboxEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev *model.OutboxEvent) error

func (f NotifierFunc) Notify(ctx context.Context, ev *model.OutboxEvent) error {
	return f(ctx, ev)
}

// LogNotifier writes events to the process log. The default sink when
// no external broker is configured.
func LogNotifier() Notifier {
	return NotifierFunc(func(_ context.Context, ev *model.OutboxEvent) error {
		log.Printf("event %s: %s", ev.Topic, ev.Payload)
		return nil
	})
}

// Drainer polls pending events and pushes them through a Notifier.
type Drainer struct {
	store    *store.Store
	notifier Notifier
	interval time.Duration
	batch    int
	now      func() time.Time
}

// NewDrainer builds a drainer with the given poll interval.
func NewDrainer(st *store.Store, n Notifier, interval time.Duration) *Drainer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Drainer{store: st, notifier: n, interval: interval, batch: 100, now: time.Now}
}

// Run polls until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, err := d.DrainOnce(ctx); err != nil {
			log.Printf("outbox: drain: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainOnce delivers up to one batch of pending events in insertion
// order, stopping at the first delivery failure so ordering holds.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	events, err := d.store.PendingOutbox(ctx, d.batch)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, ev := range events {
		if err := d.notifier.Notify(ctx, ev); err != nil {
			return delivered, err
		}
		if err := d.store.MarkPublished(ctx, ev.ID, d.now()); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}
