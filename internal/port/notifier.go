package port

import (
	"context"

	"github.com/okmart/ordercore/internal/core/domain"
)

// Subscription is an explicit handle to one change-event stream. Events is
// closed after Close returns.
type Subscription interface {
	Events() <-chan domain.ChangeEvent
	Close() error
}

// Notifier publishes order and stock mutations for the UI fan-out. Publishing
// is best-effort; callers log failures but never roll back for them.
type Notifier interface {
	PublishOrderChange(ctx context.Context, ev domain.ChangeEvent) error
	PublishStockChange(ctx context.Context, ev domain.ChangeEvent) error
	Subscribe(ctx context.Context, kind domain.EventKind) (Subscription, error)
}
