package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/okmart/ordercore/internal/adapter/handler"
	"github.com/okmart/ordercore/internal/adapter/storage"
	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/core/service"
	"github.com/okmart/ordercore/internal/metrics"
	"github.com/okmart/ordercore/internal/port"
)

const defaultHTTPAddr = ":8080"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}

	var (
		orders   port.OrderRepository
		ledger   port.InventoryLedger
		coupons  port.CouponRepository
		points   port.PointsRepository
		refunds  port.RefundRepository
		cache    port.CacheRepository
		notifier port.Notifier
	)

	var closers []func()

	dsn := os.Getenv("MYSQL_DSN")
	redisAddr := os.Getenv("REDIS_ADDR")

	if dsn == "" {
		// Dev mode: everything in memory, seeded with demo data.
		log.Println("MYSQL_DSN not set, running with in-memory storage")
		mem := storage.NewMemoryStore()
		seedDemoData(mem)
		orders, ledger, coupons, points, refunds = mem, mem, mem, mem, mem
		cache, notifier = mem, mem
	} else {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping mysql: %v", err)
		}
		log.Println("connected to mysql")
		closers = append(closers, func() { db.Close() })

		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr, PoolSize: 100})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		log.Println("connected to redis")
		closers = append(closers, func() { rdb.Close() })

		mysqlStore := storage.NewMySQLStore(db)
		redisAdapter := storage.NewRedisAdapter(rdb)
		orders, ledger, coupons, points, refunds = mysqlStore, mysqlStore, mysqlStore, mysqlStore, mysqlStore
		cache, notifier = redisAdapter, redisAdapter
	}

	orderService := service.NewOrderService(orders, ledger, coupons, points, cache, notifier)
	refundService := service.NewRefundService(refunds, orders,
		service.NewReversalExecutor(ledger, coupons, points, cache, notifier))

	httpHandler := handler.NewHTTPHandler(orderService, refundService, ledger)
	mux := httpHandler.Routes()
	mux.Handle("GET /metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	for _, c := range closers {
		c()
	}
	log.Println("connections closed")
}

func seedDemoData(mem *storage.MemoryStore) {
	mem.SeedStock("store-1", "cola-500ml", 100, 10)
	mem.SeedStock("store-1", "chips-onion", 50, 5)
	mem.SeedStock("store-1", "gimbap-tuna", 30, 5)
	mem.SeedCoupon(domain.UserCoupon{
		ID:             "demo-coupon-1",
		UserID:         "demo-user",
		CouponID:       "WELCOME2000",
		DiscountAmount: 2000,
	})
	mem.SeedPoints("demo-user", 10000)
	log.Println("seeded demo stock, coupon and points")
}
