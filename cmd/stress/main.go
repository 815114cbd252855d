package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okmart/ordercore/internal/adapter/storage"
	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/core/service"
)

const (
	storeID       = "stress-store"
	productID     = "stress-item"
	initialStock  = 20
	totalRequests = 50
	unitPrice     = 10000
)

// In-process stress run against the in-memory store: hammers PlaceOrder with
// concurrent single-item checkouts and checks that the stock never oversells.
func main() {
	ctx := context.Background()

	mem := storage.NewMemoryStore()
	mem.SeedStock(storeID, productID, initialStock, 0)

	svc := service.NewOrderService(mem, mem, mem, mem, mem, mem)

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{
				RequestID:      fmt.Sprintf("stress-req-%d", n),
				StoreID:        storeID,
				UserID:         fmt.Sprintf("user-%d", n),
				OrderType:      domain.OrderTypePickup,
				PaymentMethod:  "card",
				Items:          []service.OrderLine{{ProductID: productID, Quantity: 1, UnitPrice: unitPrice}},
				SubmittedTotal: 11000, // 10000 + 10% tax
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()
	finalStock := mem.StockQuantity(storeID, productID)
	orders, err := mem.ListOrders(ctx, storeID, "")
	if err != nil {
		log.Fatalf("list orders: %v", err)
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Orders Persisted: %d\n", len(orders))
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d orders succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}
	if finalStock == 0 && len(orders) == int(success) {
		fmt.Println("PASS: Stock depleted to 0 with one order per deduction")
	} else {
		fmt.Printf("FAIL: Expected stock 0 and %d orders, got %d and %d\n", success, finalStock, len(orders))
	}
}
