package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okmart/ordercore/internal/adapter/storage"
	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/core/service"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	store   *storage.MySQLStore
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/ordercore?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	for _, stmt := range storage.Schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		store: storage.NewMySQLStore(db),
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func (env *testEnv) newOrderService() *service.OrderService {
	return service.NewOrderService(env.store, env.store, env.store, env.store, env.cache, env.cache)
}

func (env *testEnv) seedStock(t *testing.T, ctx context.Context, storeID, productID string, quantity int) {
	t.Helper()
	err := env.store.UpsertStockRecord(ctx, domain.StockRecord{
		StoreID:   storeID,
		ProductID: productID,
		Quantity:  quantity,
	})
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	if err := env.cache.SetStockMirror(ctx, storeID, productID, quantity); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
}

func (env *testEnv) dbStock(t *testing.T, ctx context.Context, storeID, productID string) int {
	t.Helper()
	var qty int
	err := env.mysql.QueryRowContext(ctx,
		`SELECT quantity FROM stock_records WHERE store_id = ? AND product_id = ?`,
		storeID, productID).Scan(&qty)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return qty
}

func singleItemInput(storeID, productID string, qty int) service.PlaceOrderInput {
	subtotal := int64(qty) * 10000
	return service.PlaceOrderInput{
		RequestID:      uuid.New().String(),
		StoreID:        storeID,
		UserID:         "int-user",
		OrderType:      domain.OrderTypePickup,
		PaymentMethod:  "card",
		Items:          []service.OrderLine{{ProductID: productID, Quantity: qty, UnitPrice: 10000}},
		SubmittedTotal: subtotal + subtotal/10,
	}
}

func TestIntegration_ConcurrentCheckoutNoOversell(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	storeID := "int-store-" + uuid.New().String()[:8]
	productID := "int-item"
	initialStock := 10
	totalRequests := 20

	env.seedStock(t, ctx, storeID, productID, initialStock)
	svc := env.newOrderService()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PlaceOrder(ctx, singleItemInput(storeID, productID, 1)); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful checkouts, got %d", initialStock, successCount.Load())
	}
	if qty := env.dbStock(t, ctx, storeID, productID); qty != 0 {
		t.Errorf("expected MySQL stock 0, got %d", qty)
	}
	mirror, _ := env.redis.Get(ctx, fmt.Sprintf("stock:%s:%s", storeID, productID)).Int()
	if mirror != 0 {
		t.Errorf("expected mirror stock 0, got %d", mirror)
	}

	orders, err := env.store.ListOrders(ctx, storeID, "")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != initialStock {
		t.Errorf("expected %d orders, got %d", initialStock, len(orders))
	}
}

func TestIntegration_CancelRestoresStock(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	storeID := "int-store-" + uuid.New().String()[:8]
	productID := "int-item"

	env.seedStock(t, ctx, storeID, productID, 10)
	svc := env.newOrderService()

	order, err := svc.PlaceOrder(ctx, singleItemInput(storeID, productID, 3))
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}
	if qty := env.dbStock(t, ctx, storeID, productID); qty != 7 {
		t.Fatalf("expected stock 7, got %d", qty)
	}

	if err := svc.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled, "staff-1"); err != nil {
		t.Fatalf("cancellation failed: %v", err)
	}
	if qty := env.dbStock(t, ctx, storeID, productID); qty != 10 {
		t.Errorf("expected stock restored to 10, got %d", qty)
	}
	mirror, _ := env.redis.Get(ctx, fmt.Sprintf("stock:%s:%s", storeID, productID)).Int()
	if mirror != 10 {
		t.Errorf("expected mirror re-credited to 10, got %d", mirror)
	}

	// A second restoration attempt must not double-credit.
	res, err := env.store.Restore(ctx, domain.ReferenceTypeOrder, order.ID, "staff-1")
	if err != nil {
		t.Fatalf("second restore errored: %v", err)
	}
	if !res.Success || len(res.TransactionIDs) != 0 {
		t.Errorf("expected idempotent no-op, got %+v", res)
	}
	if qty := env.dbStock(t, ctx, storeID, productID); qty != 10 {
		t.Errorf("second restore changed stock: %d", qty)
	}
}

func TestIntegration_DuplicateRequestRejected(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	storeID := "int-store-" + uuid.New().String()[:8]
	productID := "int-item"

	env.seedStock(t, ctx, storeID, productID, 10)
	svc := env.newOrderService()

	input := singleItemInput(storeID, productID, 1)
	if _, err := svc.PlaceOrder(ctx, input); err != nil {
		t.Fatalf("first placement failed: %v", err)
	}

	_, err := svc.PlaceOrder(ctx, input)
	if err != service.ErrDuplicateRequest {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}
	if qty := env.dbStock(t, ctx, storeID, productID); qty != 9 {
		t.Errorf("expected stock 9, got %d", qty)
	}
}

func TestIntegration_RefundFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	storeID := "int-store-" + uuid.New().String()[:8]
	productID := "int-item"

	env.seedStock(t, ctx, storeID, productID, 10)
	svc := env.newOrderService()

	order, err := svc.PlaceOrder(ctx, singleItemInput(storeID, productID, 2))
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	refundID := uuid.New().String()
	err = env.store.CreateRefundRequest(ctx, domain.RefundRequest{
		ID:              refundID,
		OrderID:         order.ID,
		StoreID:         storeID,
		RequestedAmount: order.TotalAmount,
		Reason:          "integration test",
		Status:          domain.RefundStatusPending,
	})
	if err != nil {
		t.Fatalf("create refund request: %v", err)
	}

	refundSvc := service.NewRefundService(env.store, env.store,
		service.NewReversalExecutor(env.store, env.store, env.store, env.cache, env.cache))

	refund, err := refundSvc.ApproveRefund(ctx, refundID, "admin-1", nil, "ok")
	if err != nil {
		t.Fatalf("approval failed: %v", err)
	}
	if refund.Status != domain.RefundStatusApproved {
		t.Errorf("expected approved, got %s", refund.Status)
	}
	if qty := env.dbStock(t, ctx, storeID, productID); qty != 10 {
		t.Errorf("expected stock restored to 10, got %d", qty)
	}
	mirror, _ := env.redis.Get(ctx, fmt.Sprintf("stock:%s:%s", storeID, productID)).Int()
	if mirror != 10 {
		t.Errorf("expected mirror re-credited to 10, got %d", mirror)
	}

	got, _ := env.store.GetOrder(ctx, order.ID)
	if got.PaymentStatus != domain.PaymentStatusRefunded {
		t.Errorf("expected refunded payment status, got %s", got.PaymentStatus)
	}
}
