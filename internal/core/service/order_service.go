package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/core/pricing"
	"github.com/okmart/ordercore/internal/logging"
	"github.com/okmart/ordercore/internal/metrics"
	"github.com/okmart/ordercore/internal/port"
)

// OrderService coordinates the order lifecycle: validate, reserve inventory,
// persist the order, apply coupon and points side effects, and roll the whole
// placement back when a step that must not partially apply fails.
type OrderService struct {
	orders   port.OrderRepository
	ledger   port.InventoryLedger
	coupons  port.CouponRepository
	points   port.PointsRepository
	cache    port.CacheRepository
	notifier port.Notifier
	reversal *ReversalExecutor
}

func NewOrderService(
	orders port.OrderRepository,
	ledger port.InventoryLedger,
	coupons port.CouponRepository,
	points port.PointsRepository,
	cache port.CacheRepository,
	notifier port.Notifier,
) *OrderService {
	return &OrderService{
		orders:   orders,
		ledger:   ledger,
		coupons:  coupons,
		points:   points,
		cache:    cache,
		notifier: notifier,
		reversal: NewReversalExecutor(ledger, coupons, points, cache, notifier),
	}
}

// OrderLine is one submitted cart line.
type OrderLine struct {
	ProductID    string
	Quantity     int
	UnitPrice    int64
	DiscountRate float64
}

type PlaceOrderInput struct {
	RequestID       string
	StoreID         string
	UserID          string
	OrderType       domain.OrderType
	PaymentMethod   string
	Items           []OrderLine
	AppliedCouponID *string
	PointsUsed      int64
	SubmittedTotal  int64
}

// PlaceOrder places an order as one logical unit. On any failure before the
// coupon step the order, its items and the inventory deduction are fully
// rolled back. A points-ledger failure after that point does not roll back
// the order (payment is already captured upstream); the order is flagged for
// reconciliation instead.
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	if err := validatePlaceOrderInput(input); err != nil {
		metrics.OrdersPlaced.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ok, err := s.cache.SetIdempotency(ctx, "checkout:"+input.RequestID)
	if err != nil {
		return nil, &StorageError{Op: "idempotency check", Err: err}
	}
	if !ok {
		metrics.OrdersPlaced.WithLabelValues("duplicate").Inc()
		return nil, ErrDuplicateRequest
	}

	var coupon *domain.UserCoupon
	var couponDiscount int64
	if input.AppliedCouponID != nil {
		coupon, err = s.coupons.GetUserCoupon(ctx, *input.AppliedCouponID)
		if err != nil {
			return nil, &StorageError{Op: "coupon lookup", Err: err}
		}
		if coupon == nil {
			return nil, &ValidationError{Field: "coupon", Reason: "coupon not found"}
		}
		if coupon.UserID != input.UserID {
			return nil, &ValidationError{Field: "coupon", Reason: "coupon belongs to another user"}
		}
		if coupon.Used {
			return nil, &ValidationError{Field: "coupon", Reason: "coupon already used"}
		}
		couponDiscount = coupon.DiscountAmount
	}

	deliveryFee := int64(0)
	if input.OrderType == domain.OrderTypeDelivery {
		deliveryFee = pricing.DefaultDeliveryFee
	}

	lines := make([]pricing.CartItem, len(input.Items))
	for i, it := range input.Items {
		lines[i] = pricing.CartItem{UnitPrice: it.UnitPrice, Quantity: it.Quantity, DiscountRate: it.DiscountRate}
	}
	breakdown := pricing.ComputeBreakdown(lines, pricing.DefaultTaxRate, deliveryFee, couponDiscount, input.PointsUsed)

	if breakdown.TotalAmount != input.SubmittedTotal {
		metrics.OrdersPlaced.WithLabelValues("amount_mismatch").Inc()
		return nil, &AmountMismatchError{Submitted: input.SubmittedTotal, Computed: breakdown.TotalAmount}
	}

	if input.PointsUsed > 0 {
		balance, err := s.points.Balance(ctx, input.UserID)
		if err != nil {
			return nil, &StorageError{Op: "points balance", Err: err}
		}
		orderAmount := breakdown.Subtotal + breakdown.TaxAmount + breakdown.DeliveryFee
		if v := pricing.ValidatePointsUsage(input.PointsUsed, balance, orderAmount, couponDiscount); v != nil {
			metrics.OrdersPlaced.WithLabelValues("policy_violation").Inc()
			return nil, &PolicyViolationError{Violation: *v}
		}
	}

	items := make([]domain.DeductionItem, len(input.Items))
	for i, it := range input.Items {
		items[i] = domain.DeductionItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	reserved, gateOK := s.gateReserve(ctx, input.StoreID, items)
	if !gateOK {
		// The mirror already knows this will not fit; fetch the snapshot so
		// the caller still gets per-item detail.
		metrics.OrdersPlaced.WithLabelValues("insufficient_stock").Inc()
		return nil, s.stockErrorFromSnapshot(ctx, input.StoreID, items)
	}

	avail, err := s.ledger.ValidateAvailability(ctx, input.StoreID, items)
	if err != nil {
		s.gateRelease(ctx, input.StoreID, reserved)
		return nil, &StorageError{Op: "availability check", Err: err}
	}
	if !avail.IsValid {
		s.gateRelease(ctx, input.StoreID, reserved)
		metrics.OrdersPlaced.WithLabelValues("insufficient_stock").Inc()
		return nil, &StockInsufficientError{Items: avail.Errors}
	}

	now := time.Now()
	order := domain.Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		StoreID:         input.StoreID,
		UserID:          input.UserID,
		OrderType:       input.OrderType,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   domain.NormalizePaymentMethod(input.PaymentMethod),
		PaymentStatus:   domain.PaymentStatusPending,
		Subtotal:        breakdown.Subtotal,
		TaxAmount:       breakdown.TaxAmount,
		DeliveryFee:     breakdown.DeliveryFee,
		CouponDiscount:  breakdown.CouponDiscount,
		PointsUsed:      breakdown.PointsUsed,
		TotalAmount:     breakdown.TotalAmount,
		AppliedCouponID: input.AppliedCouponID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	orderItems := make([]domain.OrderItem, len(input.Items))
	for i, it := range input.Items {
		orderItems[i] = domain.OrderItem{
			OrderID:      order.ID,
			ProductID:    it.ProductID,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			DiscountRate: it.DiscountRate,
			Subtotal:     pricing.ItemSubtotal(it.UnitPrice, it.Quantity, it.DiscountRate),
		}
	}

	if err := s.orders.CreateOrder(ctx, order, orderItems); err != nil {
		s.gateRelease(ctx, input.StoreID, reserved)
		return nil, &StorageError{Op: "order persistence", Err: err}
	}

	res, err := s.ledger.Deduct(ctx, input.StoreID, items, domain.ReferenceTypeOrder, order.ID, order.OrderNumber, input.UserID)
	if err != nil {
		metrics.Deductions.WithLabelValues("error").Inc()
		s.rollbackPlacement(ctx, &order, reserved, false)
		return nil, &StorageError{Op: "inventory deduction", Err: err}
	}
	if !res.Success {
		metrics.Deductions.WithLabelValues("rejected").Inc()
		metrics.OrdersPlaced.WithLabelValues("insufficient_stock").Inc()
		s.rollbackPlacement(ctx, &order, reserved, false)
		return nil, &StockInsufficientError{Items: res.Errors}
	}
	metrics.Deductions.WithLabelValues("success").Inc()

	if coupon != nil {
		consumed, err := s.coupons.ConsumeCoupon(ctx, coupon.ID, order.ID)
		if err != nil {
			s.rollbackPlacement(ctx, &order, reserved, true)
			return nil, &StorageError{Op: "coupon consumption", Err: err}
		}
		if !consumed {
			// A concurrent placement won the coupon; this order's price is no
			// longer honest, so the placement is unwound.
			s.rollbackPlacement(ctx, &order, reserved, true)
			return nil, &ValidationError{Field: "coupon", Reason: "coupon already used"}
		}
	}

	if input.PointsUsed > 0 {
		entry := domain.PointsEntry{
			ID:            uuid.New().String(),
			UserID:        input.UserID,
			Delta:         -input.PointsUsed,
			ReferenceType: domain.ReferenceTypeOrder,
			ReferenceID:   order.ID,
			CreatedAt:     now,
		}
		if err := s.points.AppendEntry(ctx, entry); err != nil {
			// Payment is already captured upstream; surface for reconciliation
			// instead of unwinding the order.
			order.NeedsReconciliation = true
			if markErr := s.orders.MarkReconciliationNeeded(ctx, order.ID); markErr != nil {
				logging.Log(logging.Fields{
					Component: "order", OrderID: order.ID, StoreID: order.StoreID,
					Step: "mark_reconciliation", Status: "failed", Err: markErr.Error(),
				})
			}
			metrics.ReconciliationEvents.Inc()
			logging.Log(logging.Fields{
				Component: "order", OrderID: order.ID, StoreID: order.StoreID,
				Step: "points_deduction", Status: "needs_reconciliation", Err: err.Error(),
			})
		}
	}

	s.publishOrder(ctx, &order)
	for _, it := range items {
		s.publishStock(ctx, order.StoreID, it.ProductID, -it.Quantity)
	}

	metrics.OrdersPlaced.WithLabelValues("success").Inc()
	logging.Log(logging.Fields{
		Component: "order", OrderID: order.ID, StoreID: order.StoreID,
		Step: "place", Status: "success",
	})
	return &order, nil
}

// UpdateStatus applies a staff-driven status transition. A transition into
// cancelled triggers the compensating reversal; reversal failures do not
// un-cancel the order but are reported as a PartialReversalError.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, newStatus domain.OrderStatus, actorUserID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return &StorageError{Op: "order lookup", Err: err}
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if !domain.CanTransition(order.Status, newStatus) {
		return &InvalidTransitionError{From: string(order.Status), To: string(newStatus)}
	}

	applied, err := s.orders.UpdateOrderStatus(ctx, orderID, order.Status, newStatus)
	if err != nil {
		return &StorageError{Op: "status update", Err: err}
	}
	if !applied {
		return &InvalidTransitionError{From: string(order.Status), To: string(newStatus)}
	}
	order.Status = newStatus
	s.publishOrder(ctx, order)

	if newStatus != domain.OrderStatusCancelled {
		return nil
	}

	items, err := s.orders.GetOrderItems(ctx, orderID)
	if err != nil {
		return &PartialReversalError{ReferenceID: orderID, Failures: []ReversalStepFailure{
			{Step: "load_items", Err: err},
		}}
	}
	if failures := s.reversal.Reverse(ctx, order, items, domain.ReferenceTypeOrder, actorUserID); len(failures) > 0 {
		return &PartialReversalError{ReferenceID: orderID, Failures: failures}
	}
	return nil
}

// ConfirmPayment applies a payment confirmation event. The amount is trusted
// only after matching the order's own total.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string, amount int64, status domain.PaymentStatus) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return &StorageError{Op: "order lookup", Err: err}
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if amount != order.TotalAmount {
		return &AmountMismatchError{Submitted: amount, Computed: order.TotalAmount}
	}
	if status != domain.PaymentStatusPaid && status != domain.PaymentStatusFailed {
		return &ValidationError{Field: "payment_status", Reason: "must be paid or failed"}
	}
	if err := s.orders.UpdatePaymentStatus(ctx, orderID, status); err != nil {
		return &StorageError{Op: "payment status update", Err: err}
	}
	return nil
}

func (s *OrderService) ListOrders(ctx context.Context, storeID string, status domain.OrderStatus) ([]domain.Order, error) {
	orders, err := s.orders.ListOrders(ctx, storeID, status)
	if err != nil {
		return nil, &StorageError{Op: "order listing", Err: err}
	}
	return orders, nil
}

// rollbackPlacement unwinds a partially-placed order: the order row, its
// items and, when the deduction already applied, the stock itself.
func (s *OrderService) rollbackPlacement(ctx context.Context, order *domain.Order, reserved []domain.DeductionItem, deducted bool) {
	if deducted {
		if _, err := s.ledger.Restore(ctx, domain.ReferenceTypeOrder, order.ID, order.UserID); err != nil {
			logging.Log(logging.Fields{
				Component: "order", OrderID: order.ID, StoreID: order.StoreID,
				Step: "rollback_restore", Status: "failed", Err: err.Error(),
			})
		}
	}
	if err := s.orders.DeleteOrder(ctx, order.ID); err != nil {
		logging.Log(logging.Fields{
			Component: "order", OrderID: order.ID, StoreID: order.StoreID,
			Step: "rollback_delete", Status: "failed", Err: err.Error(),
		})
	}
	s.gateRelease(ctx, order.StoreID, reserved)
}

// gateReserve runs the items through the stock mirror. The mirror is
// advisory: errors pass through, only a definite "not enough" rejects.
func (s *OrderService) gateReserve(ctx context.Context, storeID string, items []domain.DeductionItem) ([]domain.DeductionItem, bool) {
	var reserved []domain.DeductionItem
	for _, it := range items {
		ok, err := s.cache.ReserveStock(ctx, storeID, it.ProductID, it.Quantity)
		if err != nil {
			logging.Log(logging.Fields{
				Component: "order", StoreID: storeID,
				Step: "stock_gate", Status: "degraded", Err: err.Error(),
			})
			continue
		}
		if !ok {
			s.gateRelease(ctx, storeID, reserved)
			return nil, false
		}
		reserved = append(reserved, it)
	}
	return reserved, true
}

func (s *OrderService) gateRelease(ctx context.Context, storeID string, reserved []domain.DeductionItem) {
	for _, it := range reserved {
		if err := s.cache.ReleaseStock(ctx, storeID, it.ProductID, it.Quantity); err != nil {
			logging.Log(logging.Fields{
				Component: "order", StoreID: storeID,
				Step: "stock_gate_release", Status: "failed", Err: err.Error(),
			})
		}
	}
}

// stockErrorFromSnapshot builds the detailed insufficiency error after a gate
// rejection, falling back to a generic message if the snapshot read fails.
func (s *OrderService) stockErrorFromSnapshot(ctx context.Context, storeID string, items []domain.DeductionItem) error {
	avail, err := s.ledger.ValidateAvailability(ctx, storeID, items)
	if err == nil && !avail.IsValid {
		return &StockInsufficientError{Items: avail.Errors}
	}
	errs := make([]domain.ItemError, len(items))
	for i, it := range items {
		errs[i] = domain.ItemError{ProductID: it.ProductID, Requested: it.Quantity, Reason: "insufficient stock"}
	}
	return &StockInsufficientError{Items: errs}
}

func (s *OrderService) publishOrder(ctx context.Context, order *domain.Order) {
	err := s.notifier.PublishOrderChange(ctx, domain.ChangeEvent{
		Kind:       domain.EventKindOrder,
		StoreID:    order.StoreID,
		OrderID:    order.ID,
		Status:     string(order.Status),
		OccurredAt: time.Now(),
	})
	if err != nil {
		logging.Log(logging.Fields{
			Component: "order", OrderID: order.ID, StoreID: order.StoreID,
			Step: "publish_order", Status: "failed", Err: err.Error(),
		})
	}
}

func (s *OrderService) publishStock(ctx context.Context, storeID, productID string, delta int) {
	err := s.notifier.PublishStockChange(ctx, domain.ChangeEvent{
		Kind:       domain.EventKindStock,
		StoreID:    storeID,
		ProductID:  productID,
		Delta:      delta,
		OccurredAt: time.Now(),
	})
	if err != nil {
		logging.Log(logging.Fields{
			Component: "order", StoreID: storeID,
			Step: "publish_stock", Status: "failed", Err: err.Error(),
		})
	}
}

func validatePlaceOrderInput(input PlaceOrderInput) error {
	switch {
	case input.RequestID == "":
		return &ValidationError{Field: "request_id", Reason: "required"}
	case input.StoreID == "":
		return &ValidationError{Field: "store_id", Reason: "required"}
	case input.UserID == "":
		return &ValidationError{Field: "user_id", Reason: "required"}
	case len(input.Items) == 0:
		return &ValidationError{Field: "items", Reason: "at least one item required"}
	}
	if input.OrderType != domain.OrderTypePickup && input.OrderType != domain.OrderTypeDelivery {
		return &ValidationError{Field: "order_type", Reason: "must be pickup or delivery"}
	}
	for _, it := range input.Items {
		if it.ProductID == "" {
			return &ValidationError{Field: "items", Reason: "product id required"}
		}
		if it.Quantity <= 0 {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("quantity for %s must be positive", it.ProductID)}
		}
		if it.UnitPrice <= 0 {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("unit price for %s must be positive", it.ProductID)}
		}
		if it.DiscountRate < 0 || it.DiscountRate >= 1 {
			return &ValidationError{Field: "items", Reason: fmt.Sprintf("discount rate for %s out of range", it.ProductID)}
		}
	}
	if input.PointsUsed < 0 {
		return &ValidationError{Field: "points_used", Reason: "must not be negative"}
	}
	return nil
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
