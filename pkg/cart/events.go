package cart

import (
	"context"
	"time"
)

type EventType string

const (
	EventQuantityChanged EventType = "quantity_changed"
	EventLineRemoved     EventType = "line_removed"
	EventReconcileFailed EventType = "reconcile_failed"
	EventCartDiverged    EventType = "cart_diverged"
)

type Event struct {
	Type       EventType `json:"type"`
	Owner      string    `json:"owner,omitempty"`
	ProductID  int64     `json:"product_id"`
	Previous   int       `json:"previous"`
	Requested  int       `json:"requested"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier receives a record of every change the reconciler pushed to the backend.
// Implementations must not block for long; failures are theirs to log.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}
