package service

import (
	"context"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/logging"
	"github.com/okmart/ordercore/internal/port"
)

// RefundService processes refund requests. Approval commits the status
// transition first and then runs the compensating reversal for the order;
// compensating failures are surfaced but never retract the approval.
type RefundService struct {
	refunds  port.RefundRepository
	orders   port.OrderRepository
	reversal *ReversalExecutor
}

func NewRefundService(refunds port.RefundRepository, orders port.OrderRepository, reversal *ReversalExecutor) *RefundService {
	return &RefundService{
		refunds:  refunds,
		orders:   orders,
		reversal: reversal,
	}
}

// ApproveRefund transitions the request to approved, then restores inventory,
// reinstates the coupon and reverses the points for the refunded order. The
// conditional transition commits first so exactly one of any concurrent
// approval attempts runs the compensation; the compensation itself is also
// idempotent per order, so an earlier cancellation of the same order leaves
// nothing to re-apply. A nil approvedAmount approves the requested amount.
func (s *RefundService) ApproveRefund(ctx context.Context, refundRequestID, actorUserID string, approvedAmount *int64, adminNotes string) (*domain.RefundRequest, error) {
	refund, err := s.refunds.GetRefundRequest(ctx, refundRequestID)
	if err != nil {
		return nil, &StorageError{Op: "refund lookup", Err: err}
	}
	if refund == nil {
		return nil, ErrRefundNotFound
	}
	if refund.Status != domain.RefundStatusPending {
		return nil, &InvalidTransitionError{From: string(refund.Status), To: string(domain.RefundStatusApproved)}
	}

	order, err := s.orders.GetOrder(ctx, refund.OrderID)
	if err != nil {
		return nil, &StorageError{Op: "order lookup", Err: err}
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	amount := refund.RequestedAmount
	if approvedAmount != nil {
		amount = *approvedAmount
	}
	if amount <= 0 || amount > order.TotalAmount {
		return nil, &ValidationError{Field: "approved_amount", Reason: "must be positive and at most the order total"}
	}

	items, err := s.orders.GetOrderItems(ctx, refund.OrderID)
	if err != nil {
		return nil, &StorageError{Op: "order items lookup", Err: err}
	}

	applied, err := s.refunds.UpdateRefundStatus(ctx, refund.ID, domain.RefundStatusPending, domain.RefundStatusApproved, &amount, actorUserID, adminNotes)
	if err != nil {
		return nil, &StorageError{Op: "refund status update", Err: err}
	}
	if !applied {
		return nil, &InvalidTransitionError{From: string(domain.RefundStatusPending), To: string(domain.RefundStatusApproved)}
	}

	failures := s.reversal.Reverse(ctx, order, items, domain.ReferenceTypeRefund, actorUserID)

	if err := s.orders.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusRefunded); err != nil {
		logging.Log(logging.Fields{
			Component: "refund", OrderID: order.ID, RefundID: refund.ID,
			Step: "payment_status", Status: "failed", Err: err.Error(),
		})
	}

	refund.Status = domain.RefundStatusApproved
	refund.ApprovedAmount = &amount
	refund.ProcessedBy = actorUserID
	refund.AdminNotes = adminNotes

	logging.Log(logging.Fields{
		Component: "refund", OrderID: order.ID, RefundID: refund.ID,
		Step: "approve", Status: "success",
	})

	if len(failures) > 0 {
		// The approval committed; the caller must still see that compensation
		// is incomplete.
		return refund, &PartialReversalError{ReferenceID: refund.ID, Failures: failures}
	}
	return refund, nil
}

// RejectRefund performs only the status transition; no inventory, coupon or
// points side effects.
func (s *RefundService) RejectRefund(ctx context.Context, refundRequestID, actorUserID, adminNotes string) error {
	return s.transition(ctx, refundRequestID, domain.RefundStatusPending, domain.RefundStatusRejected, actorUserID, adminNotes)
}

// MarkPending returns a rejected request to the review queue.
func (s *RefundService) MarkPending(ctx context.Context, refundRequestID, actorUserID string) error {
	return s.transition(ctx, refundRequestID, domain.RefundStatusRejected, domain.RefundStatusPending, actorUserID, "")
}

func (s *RefundService) transition(ctx context.Context, id string, from, to domain.RefundStatus, actorUserID, adminNotes string) error {
	refund, err := s.refunds.GetRefundRequest(ctx, id)
	if err != nil {
		return &StorageError{Op: "refund lookup", Err: err}
	}
	if refund == nil {
		return ErrRefundNotFound
	}
	if refund.Status != from {
		return &InvalidTransitionError{From: string(refund.Status), To: string(to)}
	}

	applied, err := s.refunds.UpdateRefundStatus(ctx, id, from, to, nil, actorUserID, adminNotes)
	if err != nil {
		return &StorageError{Op: "refund status update", Err: err}
	}
	if !applied {
		return &InvalidTransitionError{From: string(from), To: string(to)}
	}
	return nil
}
