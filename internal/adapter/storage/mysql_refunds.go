package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okmart/ordercore/internal/core/domain"
)

func (m *MySQLStore) GetRefundRequest(ctx context.Context, id string) (*domain.RefundRequest, error) {
	var r domain.RefundRequest
	var status string
	err := m.db.QueryRowContext(ctx, `
		SELECT id, order_id, store_id, requested_amount, approved_amount, reason, status,
		       admin_notes, processed_by, processed_at, created_at, updated_at
		FROM refund_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.OrderID, &r.StoreID, &r.RequestedAmount, &r.ApprovedAmount, &r.Reason,
		&status, &r.AdminNotes, &r.ProcessedBy, &r.ProcessedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query refund request: %w", err)
	}
	r.Status = domain.RefundStatus(status)
	return &r, nil
}

func (m *MySQLStore) UpdateRefundStatus(ctx context.Context, id string, from, to domain.RefundStatus, approvedAmount *int64, processedBy, adminNotes string) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
		UPDATE refund_requests
		SET status = ?, approved_amount = COALESCE(?, approved_amount),
		    processed_by = ?, admin_notes = ?, processed_at = NOW(), updated_at = NOW()
		WHERE id = ? AND status = ?`,
		string(to), approvedAmount, processedBy, adminNotes, id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update refund status: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

func (m *MySQLStore) CreateRefundRequest(ctx context.Context, r domain.RefundRequest) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO refund_requests (id, order_id, store_id, requested_amount, reason, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.OrderID, r.StoreID, r.RequestedAmount, r.Reason, string(r.Status),
	)
	if err != nil {
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}
