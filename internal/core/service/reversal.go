package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/logging"
	"github.com/okmart/ordercore/internal/metrics"
	"github.com/okmart/ordercore/internal/port"
)

// ReversalExecutor runs the compensating actions shared by order cancellation
// and refund approval: inventory restoration, stock-mirror credit, coupon
// reinstatement and points reversal. Every step is idempotent per order, so
// cancelling an order and later approving a refund for it applies each
// compensation exactly once between the two paths.
type ReversalExecutor struct {
	ledger   port.InventoryLedger
	coupons  port.CouponRepository
	points   port.PointsRepository
	cache    port.CacheRepository
	notifier port.Notifier
}

func NewReversalExecutor(ledger port.InventoryLedger, coupons port.CouponRepository, points port.PointsRepository, cache port.CacheRepository, notifier port.Notifier) *ReversalExecutor {
	return &ReversalExecutor{
		ledger:   ledger,
		coupons:  coupons,
		points:   points,
		cache:    cache,
		notifier: notifier,
	}
}

// Reverse compensates a placed order. All idempotency guards key on the order
// id; refType only stamps the audit rows with the triggering flow. Failures
// are collected, not fatal.
func (r *ReversalExecutor) Reverse(ctx context.Context, order *domain.Order, items []domain.OrderItem, refType domain.ReferenceType, actorUserID string) []ReversalStepFailure {
	var failures []ReversalStepFailure

	res, err := r.ledger.Restore(ctx, refType, order.ID, actorUserID)
	switch {
	case err != nil:
		failures = append(failures, ReversalStepFailure{Step: "inventory_restore", Err: err})
		metrics.Restorations.WithLabelValues("error").Inc()
	case !res.Success:
		failures = append(failures, ReversalStepFailure{Step: "inventory_restore", Err: fmt.Errorf("restore rejected: %v", res.Errors)})
		metrics.Restorations.WithLabelValues("rejected").Inc()
	case len(res.TransactionIDs) == 0:
		// Already restored; the mirror was credited then.
		metrics.Restorations.WithLabelValues("noop").Inc()
	default:
		metrics.Restorations.WithLabelValues("success").Inc()
		for _, it := range items {
			if err := r.cache.ReleaseStock(ctx, order.StoreID, it.ProductID, it.Quantity); err != nil {
				logging.Log(logging.Fields{
					Component: "reversal", OrderID: order.ID, StoreID: order.StoreID,
					Step: "stock_gate_release", Status: "failed", Err: err.Error(),
				})
			}
			r.publishStock(ctx, order.StoreID, it.ProductID, it.Quantity)
		}
	}

	if order.AppliedCouponID != nil {
		if _, err := r.coupons.ReinstateCoupon(ctx, *order.AppliedCouponID); err != nil {
			failures = append(failures, ReversalStepFailure{Step: "coupon_reinstate", Err: err})
		}
	}

	if order.PointsUsed > 0 {
		if err := r.reversePoints(ctx, order); err != nil {
			failures = append(failures, ReversalStepFailure{Step: "points_reverse", Err: err})
		}
	}

	for _, f := range failures {
		metrics.ReversalStepFailures.WithLabelValues(f.Step).Inc()
		logging.Log(logging.Fields{
			Component: "reversal",
			OrderID:   order.ID,
			StoreID:   order.StoreID,
			Step:      f.Step,
			Status:    "failed",
			Err:       f.Err.Error(),
		})
	}
	return failures
}

// reversePoints credits the points back exactly once per order. The entry is
// always keyed (refund, orderID) whatever the triggering flow, so cancellation
// and refund approval share one guard; the ledger's uniqueness on that pair
// closes the race two concurrent reversals would otherwise leave open.
func (r *ReversalExecutor) reversePoints(ctx context.Context, order *domain.Order) error {
	exists, err := r.points.HasEntry(ctx, domain.ReferenceTypeRefund, order.ID)
	if err != nil {
		return fmt.Errorf("points guard check: %w", err)
	}
	if exists {
		return nil
	}
	err = r.points.AppendEntry(ctx, domain.PointsEntry{
		ID:            uuid.New().String(),
		UserID:        order.UserID,
		Delta:         order.PointsUsed,
		ReferenceType: domain.ReferenceTypeRefund,
		ReferenceID:   order.ID,
		CreatedAt:     time.Now(),
	})
	if errors.Is(err, port.ErrDuplicateReference) {
		// A concurrent reversal appended first.
		return nil
	}
	return err
}

func (r *ReversalExecutor) publishStock(ctx context.Context, storeID, productID string, delta int) {
	err := r.notifier.PublishStockChange(ctx, domain.ChangeEvent{
		Kind:       domain.EventKindStock,
		StoreID:    storeID,
		ProductID:  productID,
		Delta:      delta,
		OccurredAt: time.Now(),
	})
	if err != nil {
		logging.Log(logging.Fields{
			Component: "reversal",
			StoreID:   storeID,
			Step:      "publish_stock",
			Status:    "failed",
			Err:       err.Error(),
		})
	}
}
