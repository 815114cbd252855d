package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okmart/ordercore/internal/adapter/storage"
	"github.com/okmart/ordercore/internal/core/domain"
)

// placeRefundableOrder seeds stock, coupon and points, places an order using
// all three, and registers a pending refund request against it.
func placeRefundableOrder(t *testing.T, store *storage.MemoryStore) (*domain.Order, string) {
	t.Helper()
	store.SeedStock("store-1", "cola", 10, 0)
	store.SeedCoupon(domain.UserCoupon{ID: "uc-1", UserID: "user-1", DiscountAmount: 2000})
	store.SeedPoints("user-1", 5000)

	svc := newTestService(store)
	couponID := "uc-1"
	order, err := svc.PlaceOrder(context.Background(), PlaceOrderInput{
		RequestID:       "req-refund",
		StoreID:         "store-1",
		UserID:          "user-1",
		OrderType:       domain.OrderTypePickup,
		PaymentMethod:   "card",
		Items:           []OrderLine{{ProductID: "cola", Quantity: 2, UnitPrice: 10000}},
		AppliedCouponID: &couponID,
		PointsUsed:      1000,
		SubmittedTotal:  19000,
	})
	require.NoError(t, err)

	store.SeedRefundRequest(domain.RefundRequest{
		ID:              "rf-1",
		OrderID:         order.ID,
		StoreID:         "store-1",
		RequestedAmount: order.TotalAmount,
		Reason:          "changed my mind",
		Status:          domain.RefundStatusPending,
	})
	return order, "rf-1"
}

func newRefundService(store *storage.MemoryStore) *RefundService {
	return NewRefundService(store, store, NewReversalExecutor(store, store, store, store, store))
}

func TestApproveRefund_RestoresEverything(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	order, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	refund, err := svc.ApproveRefund(ctx, refundID, "admin-1", nil, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusApproved, refund.Status)
	require.NotNil(t, refund.ApprovedAmount)
	assert.Equal(t, order.TotalAmount, *refund.ApprovedAmount)

	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))

	coupon, _ := store.GetUserCoupon(ctx, "uc-1")
	assert.False(t, coupon.Used)

	balance, _ := store.Balance(ctx, "user-1")
	assert.Equal(t, int64(5000), balance)

	got, _ := store.GetOrder(ctx, order.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, got.PaymentStatus)
}

func TestApproveRefund_PartialAmount(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	order, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	partial := order.TotalAmount / 2
	refund, err := svc.ApproveRefund(ctx, refundID, "admin-1", &partial, "partial")
	require.NoError(t, err)
	require.NotNil(t, refund.ApprovedAmount)
	assert.Equal(t, partial, *refund.ApprovedAmount)
}

func TestApproveRefund_AmountAboveTotal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	order, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	tooMuch := order.TotalAmount + 1
	_, err := svc.ApproveRefund(ctx, refundID, "admin-1", &tooMuch, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Rejected before any side effect.
	assert.Equal(t, 8, store.StockQuantity("store-1", "cola"))
}

func TestApproveRefund_SecondApprovalRejected(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	_, err := svc.ApproveRefund(ctx, refundID, "admin-1", nil, "")
	require.NoError(t, err)

	_, err = svc.ApproveRefund(ctx, refundID, "admin-1", nil, "")
	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)

	// The first approval's side effects stand unchanged.
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))
	balance, _ := store.Balance(ctx, "user-1")
	assert.Equal(t, int64(5000), balance)
}

func TestApproveRefund_AfterCancellationSingleCredit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	order, refundID := placeRefundableOrder(t, store)

	orderSvc := newTestService(store)
	require.NoError(t, orderSvc.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled, "staff-1"))

	balance, _ := store.Balance(ctx, "user-1")
	require.Equal(t, int64(5000), balance)
	require.Equal(t, 10, store.StockQuantity("store-1", "cola"))

	// The cancellation already compensated everything; approving the refund
	// afterwards must not credit any of it a second time.
	refundSvc := newRefundService(store)
	refund, err := refundSvc.ApproveRefund(ctx, refundID, "admin-1", nil, "already cancelled")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusApproved, refund.Status)

	balance, _ = store.Balance(ctx, "user-1")
	assert.Equal(t, int64(5000), balance)
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))
	coupon, _ := store.GetUserCoupon(ctx, "uc-1")
	assert.False(t, coupon.Used)
}

func TestApproveRefund_ConcurrentApprovalSingleCredit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	var wg sync.WaitGroup
	var approvals atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApproveRefund(ctx, refundID, "admin-1", nil, ""); err == nil {
				approvals.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly one approval wins the conditional transition, and the points
	// come back exactly once.
	assert.Equal(t, int32(1), approvals.Load())
	balance, _ := store.Balance(ctx, "user-1")
	assert.Equal(t, int64(5000), balance)
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))
}

func TestApproveRefund_NotFound(t *testing.T) {
	svc := newRefundService(storage.NewMemoryStore())
	_, err := svc.ApproveRefund(context.Background(), "missing", "admin-1", nil, "")
	assert.True(t, errors.Is(err, ErrRefundNotFound))
}

// failingCoupons fails every reinstatement.
type failingCoupons struct {
	*storage.MemoryStore
}

func (f *failingCoupons) ReinstateCoupon(ctx context.Context, userCouponID string) (bool, error) {
	return false, errors.New("connection reset")
}

func TestApproveRefund_PartialReversalSurfaced(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, refundID := placeRefundableOrder(t, store)
	svc := NewRefundService(store, store,
		NewReversalExecutor(store, &failingCoupons{store}, store, store, store))

	refund, err := svc.ApproveRefund(ctx, refundID, "admin-1", nil, "")

	// The approval itself committed.
	require.NotNil(t, refund)
	assert.Equal(t, domain.RefundStatusApproved, refund.Status)

	var partial *PartialReversalError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Failures, 1)
	assert.Equal(t, "coupon_reinstate", partial.Failures[0].Step)

	// The steps that did run are not rolled back.
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))
}

func TestRejectRefund_NoSideEffects(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	order, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	require.NoError(t, svc.RejectRefund(ctx, refundID, "admin-1", "not eligible"))

	refund, _ := store.GetRefundRequest(ctx, refundID)
	assert.Equal(t, domain.RefundStatusRejected, refund.Status)
	assert.Equal(t, "not eligible", refund.AdminNotes)

	// Stock, coupon and points untouched.
	assert.Equal(t, 8, store.StockQuantity("store-1", "cola"))
	coupon, _ := store.GetUserCoupon(ctx, "uc-1")
	assert.True(t, coupon.Used)
	balance, _ := store.Balance(ctx, "user-1")
	assert.Equal(t, int64(4000), balance)

	got, _ := store.GetOrder(ctx, order.ID)
	assert.NotEqual(t, domain.PaymentStatusRefunded, got.PaymentStatus)
}

func TestMarkPending_ReturnsRejectedToQueue(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, refundID := placeRefundableOrder(t, store)
	svc := newRefundService(store)

	require.NoError(t, svc.RejectRefund(ctx, refundID, "admin-1", ""))
	require.NoError(t, svc.MarkPending(ctx, refundID, "admin-2"))

	refund, _ := store.GetRefundRequest(ctx, refundID)
	assert.Equal(t, domain.RefundStatusPending, refund.Status)

	// An approved request cannot be reopened.
	_, err := svc.ApproveRefund(ctx, refundID, "admin-1", nil, "")
	require.NoError(t, err)
	err = svc.MarkPending(ctx, refundID, "admin-2")
	var transErr *InvalidTransitionError
	require.ErrorAs(t, err, &transErr)
}
