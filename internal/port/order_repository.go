package port

import (
	"context"

	"github.com/okmart/ordercore/internal/core/domain"
)

// OrderRepository owns Order and OrderItem persistence.
type OrderRepository interface {
	// CreateOrder persists the order header and its items atomically.
	CreateOrder(ctx context.Context, order domain.Order, items []domain.OrderItem) error

	// DeleteOrder removes the order and its items; used to roll back a
	// placement whose inventory deduction failed.
	DeleteOrder(ctx context.Context, orderID string) error

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)

	// UpdateOrderStatus applies the transition only if the order is still in
	// the expected status; returns false when a concurrent update won.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error)

	UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) error

	// MarkReconciliationNeeded flags an order whose points deduction could not
	// be recorded after payment capture.
	MarkReconciliationNeeded(ctx context.Context, orderID string) error

	ListOrders(ctx context.Context, storeID string, status domain.OrderStatus) ([]domain.Order, error)
}
