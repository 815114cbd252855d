package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okmart/ordercore/internal/core/domain"
)

// MySQLStore is the authoritative persistence adapter: inventory ledger,
// orders, coupons, points and refunds on one relational store.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (m *MySQLStore) CreateOrder(ctx context.Context, order domain.Order, items []domain.OrderItem) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
			(id, order_number, store_id, user_id, order_type, status, payment_method, payment_status,
			 subtotal, tax_amount, delivery_fee, coupon_discount, points_used, total_amount,
			 applied_coupon_id, needs_reconciliation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.OrderNumber, order.StoreID, order.UserID, string(order.OrderType),
		string(order.Status), string(order.PaymentMethod), string(order.PaymentStatus),
		order.Subtotal, order.TaxAmount, order.DeliveryFee, order.CouponDiscount,
		order.PointsUsed, order.TotalAmount, order.AppliedCouponID, order.NeedsReconciliation,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price, discount_rate, subtotal)
			VALUES (?, ?, ?, ?, ?, ?)`,
			it.OrderID, it.ProductID, it.Quantity, it.UnitPrice, it.DiscountRate, it.Subtotal,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLStore) DeleteOrder(ctx context.Context, orderID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID); err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return tx.Commit()
}

const orderColumns = `id, order_number, store_id, user_id, order_type, status, payment_method, payment_status,
	subtotal, tax_amount, delivery_fee, coupon_discount, points_used, total_amount,
	applied_coupon_id, needs_reconciliation, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	var orderType, status, paymentMethod, paymentStatus string
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.StoreID, &o.UserID, &orderType, &status, &paymentMethod, &paymentStatus,
		&o.Subtotal, &o.TaxAmount, &o.DeliveryFee, &o.CouponDiscount, &o.PointsUsed, &o.TotalAmount,
		&o.AppliedCouponID, &o.NeedsReconciliation, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.OrderType = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return &o, nil
}

func (m *MySQLStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

func (m *MySQLStore) GetOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, unit_price, discount_rate, subtotal
		FROM order_items WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.DiscountRate, &it.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (m *MySQLStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`,
		string(to), orderID, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLStore) UpdatePaymentStatus(ctx context.Context, orderID string, status domain.PaymentStatus) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = ?, updated_at = NOW() WHERE id = ?`,
		string(status), orderID,
	)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (m *MySQLStore) MarkReconciliationNeeded(ctx context.Context, orderID string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders SET needs_reconciliation = 1, updated_at = NOW() WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("mark reconciliation: %w", err)
	}
	return nil
}

func (m *MySQLStore) ListOrders(ctx context.Context, storeID string, status domain.OrderStatus) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE store_id = ?`
	args := []any{storeID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}
