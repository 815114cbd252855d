package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/port"
)

// MemoryStore is a mutex-guarded implementation of every port, used by the
// unit tests and by the server's dev/demo mode when no MySQL DSN is
// configured. The single mutex makes every ledger operation trivially
// serializable, matching the guarantees the MySQL adapter gets from row
// locking.
type MemoryStore struct {
	mu           sync.Mutex
	stock        map[string]*domain.StockRecord // keyed storeID + "/" + productID
	transactions []domain.InventoryTransaction
	orders       map[string]*domain.Order
	orderItems   map[string][]domain.OrderItem
	coupons      map[string]*domain.UserCoupon
	points       []domain.PointsEntry
	refunds      map[string]*domain.RefundRequest
	idempotency  map[string]bool
	subscribers  map[domain.EventKind][]*memorySubscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stock:       make(map[string]*domain.StockRecord),
		orders:      make(map[string]*domain.Order),
		orderItems:  make(map[string][]domain.OrderItem),
		coupons:     make(map[string]*domain.UserCoupon),
		refunds:     make(map[string]*domain.RefundRequest),
		idempotency: make(map[string]bool),
		subscribers: make(map[domain.EventKind][]*memorySubscription),
	}
}

func stockKey(storeID, productID string) string {
	return storeID + "/" + productID
}

// SeedStock creates or resets a stock record.
func (m *MemoryStore) SeedStock(storeID, productID string, quantity, safetyThreshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.stock[stockKey(storeID, productID)] = &domain.StockRecord{
		StoreID:         storeID,
		ProductID:       productID,
		Quantity:        quantity,
		SafetyThreshold: safetyThreshold,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// SeedCoupon registers a user coupon.
func (m *MemoryStore) SeedCoupon(c domain.UserCoupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cc := c
	m.coupons[c.ID] = &cc
}

// SeedPoints credits a user's points balance.
func (m *MemoryStore) SeedPoints(userID string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, domain.PointsEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Delta:     amount,
		CreatedAt: time.Now(),
	})
}

// SeedRefundRequest registers a pending refund request.
func (m *MemoryStore) SeedRefundRequest(r domain.RefundRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rr := r
	m.refunds[r.ID] = &rr
}

// StockQuantity reads the current quantity; test helper.
func (m *MemoryStore) StockQuantity(storeID, productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.stock[stockKey(storeID, productID)]; ok {
		return rec.Quantity
	}
	return -1
}

// Transactions returns a copy of the audit log; test helper.
func (m *MemoryStore) Transactions() []domain.InventoryTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.InventoryTransaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

// --- InventoryLedger ---

func (m *MemoryStore) ValidateAvailability(ctx context.Context, storeID string, items []domain.DeductionItem) (domain.AvailabilityResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := domain.AvailabilityResult{
		IsValid: true,
		Stock:   make(map[string]domain.StockSnapshot, len(items)),
	}
	for _, it := range items {
		rec, ok := m.stock[stockKey(storeID, it.ProductID)]
		if !ok {
			result.IsValid = false
			result.Errors = append(result.Errors, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Reason:    "product not found",
			})
			continue
		}
		result.Stock[it.ProductID] = domain.StockSnapshot{
			ProductID: it.ProductID,
			Available: rec.Quantity,
			LowStock:  rec.Quantity <= rec.SafetyThreshold,
		}
		if rec.Quantity < it.Quantity {
			result.IsValid = false
			result.Errors = append(result.Errors, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: rec.Quantity,
			})
		}
	}
	return result, nil
}

func (m *MemoryStore) Deduct(ctx context.Context, storeID string, items []domain.DeductionItem, refType domain.ReferenceType, referenceID, orderNumber, actorUserID string) (domain.LedgerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// First pass: re-check everything so a failure mutates nothing.
	var itemErrs []domain.ItemError
	for _, it := range items {
		rec, ok := m.stock[stockKey(storeID, it.ProductID)]
		if !ok {
			itemErrs = append(itemErrs, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Reason:    "product not found",
			})
			continue
		}
		if rec.Quantity < it.Quantity {
			itemErrs = append(itemErrs, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: rec.Quantity,
			})
		}
	}
	if len(itemErrs) > 0 {
		return domain.LedgerResult{Success: false, Errors: itemErrs}, nil
	}

	now := time.Now()
	txIDs := make([]string, 0, len(items))
	for _, it := range items {
		rec := m.stock[stockKey(storeID, it.ProductID)]
		rec.Quantity -= it.Quantity
		rec.Version++
		rec.UpdatedAt = now

		id := uuid.New().String()
		m.transactions = append(m.transactions, domain.InventoryTransaction{
			ID:            id,
			StoreID:       storeID,
			ProductID:     it.ProductID,
			QuantityDelta: -it.Quantity,
			ReferenceType: refType,
			ReferenceID:   referenceID,
			OrderNumber:   orderNumber,
			ActorUserID:   actorUserID,
			CreatedAt:     now,
		})
		txIDs = append(txIDs, id)
	}
	return domain.LedgerResult{Success: true, TransactionIDs: txIDs}, nil
}

func (m *MemoryStore) Restore(ctx context.Context, refType domain.ReferenceType, referenceID, actorUserID string) (domain.LedgerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deductions []domain.InventoryTransaction
	for _, tx := range m.transactions {
		if tx.ReferenceID != referenceID {
			continue
		}
		if tx.QuantityDelta > 0 {
			// Already restored for this reference.
			return domain.LedgerResult{Success: true}, nil
		}
		deductions = append(deductions, tx)
	}
	if len(deductions) == 0 {
		return domain.LedgerResult{
			Success: false,
			Errors:  []domain.ItemError{{Reason: "no deduction recorded for reference"}},
		}, nil
	}

	now := time.Now()
	txIDs := make([]string, 0, len(deductions))
	for _, d := range deductions {
		rec, ok := m.stock[stockKey(d.StoreID, d.ProductID)]
		if !ok {
			rec = &domain.StockRecord{StoreID: d.StoreID, ProductID: d.ProductID, CreatedAt: now}
			m.stock[stockKey(d.StoreID, d.ProductID)] = rec
		}
		rec.Quantity += -d.QuantityDelta
		rec.Version++
		rec.UpdatedAt = now

		id := uuid.New().String()
		m.transactions = append(m.transactions, domain.InventoryTransaction{
			ID:            id,
			StoreID:       d.StoreID,
			ProductID:     d.ProductID,
			QuantityDelta: -d.QuantityDelta,
			ReferenceType: refType,
			ReferenceID:   referenceID,
			OrderNumber:   d.OrderNumber,
			ActorUserID:   actorUserID,
			CreatedAt:     now,
		})
		txIDs = append(txIDs, id)
	}
	return domain.LedgerResult{Success: true, TransactionIDs: txIDs}, nil
}

// --- OrderRepository ---

func (m *MemoryStore) CreateOrder(ctx context.Context, order domain.Order, items []domain.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	o := order
	m.orders[order.ID] = &o
	m.orderItems[order.ID] = append([]domain.OrderItem(nil), items...)
	return nil
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	delete(m.orderItems, orderID)
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) GetOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OrderItem(nil), m.orderItems[orderID]...), nil
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.PaymentStatus = status
	o.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) MarkReconciliationNeeded(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	o.NeedsReconciliation = true
	return nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, storeID string, status domain.OrderStatus) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.StoreID != storeID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

// --- CouponRepository ---

func (m *MemoryStore) GetUserCoupon(ctx context.Context, userCouponID string) (*domain.UserCoupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[userCouponID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ConsumeCoupon(ctx context.Context, userCouponID, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[userCouponID]
	if !ok || c.Used {
		return false, nil
	}
	now := time.Now()
	c.Used = true
	c.UsedOrderID = &orderID
	c.UsedAt = &now
	return true, nil
}

func (m *MemoryStore) ReinstateCoupon(ctx context.Context, userCouponID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[userCouponID]
	if !ok || !c.Used {
		return false, nil
	}
	c.Used = false
	c.UsedOrderID = nil
	c.UsedAt = nil
	return true, nil
}

// --- PointsRepository ---

func (m *MemoryStore) Balance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var balance int64
	for _, e := range m.points {
		if e.UserID == userID {
			balance += e.Delta
		}
	}
	return balance, nil
}

func (m *MemoryStore) AppendEntry(ctx context.Context, entry domain.PointsEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ReferenceType != "" && entry.ReferenceID != "" {
		for _, e := range m.points {
			if e.ReferenceType == entry.ReferenceType && e.ReferenceID == entry.ReferenceID {
				return port.ErrDuplicateReference
			}
		}
	}
	m.points = append(m.points, entry)
	return nil
}

func (m *MemoryStore) HasEntry(ctx context.Context, refType domain.ReferenceType, referenceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.points {
		if e.ReferenceType == refType && e.ReferenceID == referenceID {
			return true, nil
		}
	}
	return false, nil
}

// --- RefundRepository ---

func (m *MemoryStore) GetRefundRequest(ctx context.Context, id string) (*domain.RefundRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRefundStatus(ctx context.Context, id string, from, to domain.RefundStatus, approvedAmount *int64, processedBy, adminNotes string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refunds[id]
	if !ok || r.Status != from {
		return false, nil
	}
	now := time.Now()
	r.Status = to
	if approvedAmount != nil {
		amount := *approvedAmount
		r.ApprovedAmount = &amount
	}
	r.ProcessedBy = processedBy
	r.AdminNotes = adminNotes
	r.ProcessedAt = &now
	r.UpdatedAt = now
	return true, nil
}

// --- CacheRepository ---

func (m *MemoryStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotency[key] {
		return false, nil
	}
	m.idempotency[key] = true
	return true, nil
}

// ReserveStock always passes through: in memory mode there is no mirror and
// the ledger itself is the fast path.
func (m *MemoryStore) ReserveStock(ctx context.Context, storeID, productID string, quantity int) (bool, error) {
	return true, nil
}

func (m *MemoryStore) ReleaseStock(ctx context.Context, storeID, productID string, quantity int) error {
	return nil
}

// --- Notifier ---

type memorySubscription struct {
	store  *MemoryStore
	kind   domain.EventKind
	events chan domain.ChangeEvent
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.store.removeSubscriber(s)
		close(s.events)
	})
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, kind domain.EventKind) (port.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memorySubscription{
		store:  m,
		kind:   kind,
		events: make(chan domain.ChangeEvent, 64),
	}
	m.subscribers[kind] = append(m.subscribers[kind], sub)
	return sub, nil
}

func (m *MemoryStore) removeSubscriber(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sub.kind]
	for i, s := range subs {
		if s == sub {
			m.subscribers[sub.kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (m *MemoryStore) PublishOrderChange(ctx context.Context, ev domain.ChangeEvent) error {
	return m.publish(domain.EventKindOrder, ev)
}

func (m *MemoryStore) PublishStockChange(ctx context.Context, ev domain.ChangeEvent) error {
	return m.publish(domain.EventKindStock, ev)
}

func (m *MemoryStore) publish(kind domain.EventKind, ev domain.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscribers[kind] {
		select {
		case sub.events <- ev:
		default:
			// Slow subscriber; drop rather than block the mutation path.
		}
	}
	return nil
}
