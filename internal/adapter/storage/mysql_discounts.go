package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/okmart/ordercore/internal/core/domain"
	"github.com/okmart/ordercore/internal/port"
)

func (m *MySQLStore) GetUserCoupon(ctx context.Context, userCouponID string) (*domain.UserCoupon, error) {
	var c domain.UserCoupon
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, coupon_id, discount_amount, used, used_order_id, used_at, created_at
		FROM user_coupons WHERE id = ?`, userCouponID,
	).Scan(&c.ID, &c.UserID, &c.CouponID, &c.DiscountAmount, &c.Used, &c.UsedOrderID, &c.UsedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user coupon: %w", err)
	}
	return &c, nil
}

// ConsumeCoupon only transitions a currently-unused coupon, so a concurrent
// double-apply loses the conditional update instead of double-consuming.
func (m *MySQLStore) ConsumeCoupon(ctx context.Context, userCouponID, orderID string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE user_coupons SET used = 1, used_order_id = ?, used_at = NOW()
		WHERE id = ? AND used = 0`,
		orderID, userCouponID,
	)
	if err != nil {
		return false, fmt.Errorf("consume coupon: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLStore) ReinstateCoupon(ctx context.Context, userCouponID string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE user_coupons SET used = 0, used_order_id = NULL, used_at = NULL
		WHERE id = ? AND used = 1`,
		userCouponID,
	)
	if err != nil {
		return false, fmt.Errorf("reinstate coupon: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLStore) CreateUserCoupon(ctx context.Context, c domain.UserCoupon) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO user_coupons (id, user_id, coupon_id, discount_amount, used)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.CouponID, c.DiscountAmount, c.Used,
	)
	if err != nil {
		return fmt.Errorf("insert user coupon: %w", err)
	}
	return nil
}

func (m *MySQLStore) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM points_ledger WHERE user_id = ?`, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("query points balance: %w", err)
	}
	return balance, nil
}

// AppendEntry inserts one ledger row. The unique key on
// (reference_type, reference_id) makes the insert itself the idempotency
// guard; a duplicate surfaces as ErrDuplicateReference.
func (m *MySQLStore) AppendEntry(ctx context.Context, entry domain.PointsEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO points_ledger (id, user_id, delta, reference_type, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.Delta, string(entry.ReferenceType), entry.ReferenceID, entry.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return port.ErrDuplicateReference
		}
		return fmt.Errorf("append points entry: %w", err)
	}
	return nil
}

func (m *MySQLStore) HasEntry(ctx context.Context, refType domain.ReferenceType, referenceID string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM points_ledger WHERE reference_type = ? AND reference_id = ?)`,
		string(refType), referenceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check points entry: %w", err)
	}
	return exists, nil
}
