package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// nextStatus holds the single legal forward step for each non-terminal status.
var nextStatus = map[OrderStatus]OrderStatus{
	OrderStatusPending:   OrderStatusConfirmed,
	OrderStatusConfirmed: OrderStatusPreparing,
	OrderStatusPreparing: OrderStatusReady,
	OrderStatusReady:     OrderStatusCompleted,
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransition reports whether the status change is legal. Orders advance one
// step at a time; cancellation is reachable from any non-terminal status.
func CanTransition(from, to OrderStatus) bool {
	if to == OrderStatusCancelled {
		return !from.IsTerminal()
	}
	return nextStatus[from] == to
}

type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
)

// PaymentMethodAliases folds gateway-specific wallet methods into the category
// persisted on the order. Inherited business behavior; edit the table rather
// than the normalization code if the categories ever need to split.
var PaymentMethodAliases = map[string]PaymentMethod{
	"mobile": PaymentMethodCard,
	"naver":  PaymentMethodCard,
	"payco":  PaymentMethodCard,
}

// NormalizePaymentMethod maps a submitted payment method string onto the
// persisted category. Unknown methods fall back to card.
func NormalizePaymentMethod(m string) PaymentMethod {
	if alias, ok := PaymentMethodAliases[m]; ok {
		return alias
	}
	switch PaymentMethod(m) {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodTransfer:
		return PaymentMethod(m)
	}
	return PaymentMethodCard
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is the aggregate root for a placed order. The amount fields are the
// persisted amount breakdown; every one of them is a whole currency unit.
type Order struct {
	ID                  string
	OrderNumber         string
	StoreID             string
	UserID              string
	OrderType           OrderType
	Status              OrderStatus
	PaymentMethod       PaymentMethod
	PaymentStatus       PaymentStatus
	Subtotal            int64
	TaxAmount           int64
	DeliveryFee         int64
	CouponDiscount      int64
	PointsUsed          int64
	TotalAmount         int64
	AppliedCouponID     *string
	NeedsReconciliation bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderItem is immutable once the order is placed.
type OrderItem struct {
	OrderID      string
	ProductID    string
	Quantity     int
	UnitPrice    int64
	DiscountRate float64
	Subtotal     int64
}
