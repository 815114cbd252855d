package domain

import "time"

type EventKind string

const (
	EventKindOrder EventKind = "order"
	EventKindStock EventKind = "stock"
)

// ChangeEvent is published on every order status or stock mutation. The
// subscription side fans these out to the UI.
type ChangeEvent struct {
	Kind       EventKind `json:"kind"`
	StoreID    string    `json:"store_id"`
	OrderID    string    `json:"order_id,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Delta      int       `json:"delta,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
