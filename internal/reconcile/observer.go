package reconcile

import (
	"context"
	"time"

	"github.com/ritza-co/bryntum-backend-guides/internal/store"
)

// Op is the kind of row mutation reported to observers.
type Op string

const (
	OpAdded    Op = "added"
	OpUpdated  Op = "updated"
	OpRemoved  Op = "removed"
	OpCascaded Op = "cascaded"
)

// RowEvent describes one committed row mutation. Record holds the full row
// for additions and only the written fields for updates.
type RowEvent struct {
	Collection string
	Op         Op
	Key        store.Key
	Record     store.Record
}

// Observer is notified of committed mutations and finished batches. It must
// not block; errors stay inside the observer.
type Observer interface {
	RowApplied(ctx context.Context, ev RowEvent)
	BatchFinished(ctx context.Context, op string, elapsed time.Duration, err error)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) RowApplied(ctx context.Context, ev RowEvent) {
	for _, obs := range o {
		obs.RowApplied(ctx, ev)
	}
}

func (o Observers) BatchFinished(ctx context.Context, op string, elapsed time.Duration, err error) {
	for _, obs := range o {
		obs.BatchFinished(ctx, op, elapsed, err)
	}
}
