package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/port"
)

func TestMemoryStoreValidateAvailability(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedStock("store-1", "cola", 10, 3)
	store.SeedStock("store-1", "chips", 2, 5)

	res, err := store.ValidateAvailability(ctx, "store-1", []domain.DeductionItem{
		{ProductID: "cola", Quantity: 5},
		{ProductID: "chips", Quantity: 3},
		{ProductID: "gum", Quantity: 1},
	})
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 2)

	// Snapshot still covers every known product.
	assert.Equal(t, 10, res.Stock["cola"].Available)
	assert.False(t, res.Stock["cola"].LowStock)
	assert.Equal(t, 2, res.Stock["chips"].Available)
	assert.True(t, res.Stock["chips"].LowStock)
}

func TestMemoryStoreDeductAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedStock("store-1", "cola", 10, 0)
	store.SeedStock("store-1", "chips", 1, 0)

	res, err := store.Deduct(ctx, "store-1", []domain.DeductionItem{
		{ProductID: "cola", Quantity: 5},
		{ProductID: "chips", Quantity: 2},
	}, domain.ReferenceTypeOrder, "order-1", "ORD-1", "user-1")
	require.NoError(t, err)
	assert.False(t, res.Success)

	// Nothing moved, including the line that would have fit.
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))
	assert.Equal(t, 1, store.StockQuantity("store-1", "chips"))
	assert.Empty(t, store.Transactions())
}

func TestMemoryStoreConcurrentDeductNoOversell(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedStock("store-1", "cola", 5, 0)

	var wg sync.WaitGroup
	var successes atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, err := store.Deduct(ctx, "store-1", []domain.DeductionItem{
				{ProductID: "cola", Quantity: 3},
			}, domain.ReferenceTypeOrder, "order-"+string(rune('a'+n)), "ORD", "user-1")
			if err == nil && res.Success {
				successes.Add(1)
			}
		}(i)
	}
	wg.Wait()

	// 3 + 3 against 5: exactly one request wins.
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, 2, store.StockQuantity("store-1", "cola"))
}

func TestMemoryStoreRestoreIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedStock("store-1", "cola", 10, 0)

	res, err := store.Deduct(ctx, "store-1", []domain.DeductionItem{
		{ProductID: "cola", Quantity: 4},
	}, domain.ReferenceTypeOrder, "order-1", "ORD-1", "user-1")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 6, store.StockQuantity("store-1", "cola"))

	first, err := store.Restore(ctx, domain.ReferenceTypeOrder, "order-1", "admin")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Len(t, first.TransactionIDs, 1)
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))

	// A refund-triggered restore of the same reference is still a no-op.
	second, err := store.Restore(ctx, domain.ReferenceTypeRefund, "order-1", "admin")
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Empty(t, second.TransactionIDs)
	assert.Equal(t, 10, store.StockQuantity("store-1", "cola"))
}

func TestMemoryStoreRestoreStampsTriggeringFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedStock("store-1", "cola", 10, 0)

	_, err := store.Deduct(ctx, "store-1", []domain.DeductionItem{
		{ProductID: "cola", Quantity: 4},
	}, domain.ReferenceTypeOrder, "order-1", "ORD-1", "user-1")
	require.NoError(t, err)

	res, err := store.Restore(ctx, domain.ReferenceTypeOrder, "order-1", "staff-1")
	require.NoError(t, err)
	require.True(t, res.Success)

	var compensating []domain.InventoryTransaction
	for _, tx := range store.Transactions() {
		if tx.QuantityDelta > 0 {
			compensating = append(compensating, tx)
		}
	}
	require.Len(t, compensating, 1)
	assert.Equal(t, domain.ReferenceTypeOrder, compensating[0].ReferenceType)
	assert.Equal(t, "order-1", compensating[0].ReferenceID)
}

func TestMemoryStoreRestoreUnknownReference(t *testing.T) {
	store := NewMemoryStore()
	res, err := store.Restore(context.Background(), domain.ReferenceTypeOrder, "never-deducted", "admin")
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestMemoryStoreCouponConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedCoupon(domain.UserCoupon{ID: "uc-1", UserID: "user-1", DiscountAmount: 2000})

	ok, err := store.ConsumeCoupon(ctx, "uc-1", "order-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ConsumeCoupon(ctx, "uc-1", "order-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ReinstateCoupon(ctx, "uc-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ReinstateCoupon(ctx, "uc-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorePointsBalance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedPoints("user-1", 5000)

	require.NoError(t, store.AppendEntry(ctx, domain.PointsEntry{
		ID: "pe-1", UserID: "user-1", Delta: -500,
		ReferenceType: domain.ReferenceTypeOrder, ReferenceID: "order-1",
	}))

	balance, err := store.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4500), balance)

	has, err := store.HasEntry(ctx, domain.ReferenceTypeOrder, "order-1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasEntry(ctx, domain.ReferenceTypeRefund, "order-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryStorePointsDuplicateReference(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entry := domain.PointsEntry{
		ID: "pe-1", UserID: "user-1", Delta: 500,
		ReferenceType: domain.ReferenceTypeRefund, ReferenceID: "order-1",
	}
	require.NoError(t, store.AppendEntry(ctx, entry))

	entry.ID = "pe-2"
	err := store.AppendEntry(ctx, entry)
	require.ErrorIs(t, err, port.ErrDuplicateReference)

	// The duplicate left no trace in the balance.
	balance, err := store.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestMemoryStoreIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	ok, err := store.SetIdempotency(ctx, "checkout:req-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetIdempotency(ctx, "checkout:req-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorePubSub(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sub, err := store.Subscribe(ctx, domain.EventKindStock)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.PublishStockChange(ctx, domain.ChangeEvent{
		Kind: domain.EventKindStock, StoreID: "store-1", ProductID: "cola", Delta: -2,
	}))

	ev := <-sub.Events()
	assert.Equal(t, "cola", ev.ProductID)
	assert.Equal(t, -2, ev.Delta)

	// Order events do not leak into the stock subscription.
	require.NoError(t, store.PublishOrderChange(ctx, domain.ChangeEvent{
		Kind: domain.EventKindOrder, OrderID: "order-1",
	}))
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event on stock subscription: %+v", ev)
	default:
	}
}
