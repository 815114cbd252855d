package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/okmart/ordercore/internal/core/domain"
)

// ValidateAvailability reads the current quantities for all requested
// products in one statement and reports per-item shortfalls. It never
// mutates anything; snapshots are returned even when the check fails.
func (m *MySQLStore) ValidateAvailability(ctx context.Context, storeID string, items []domain.DeductionItem) (domain.AvailabilityResult, error) {
	result := domain.AvailabilityResult{
		IsValid: true,
		Stock:   make(map[string]domain.StockSnapshot, len(items)),
	}
	if len(items) == 0 {
		return result, nil
	}

	query := `SELECT product_id, quantity, safety_threshold FROM stock_records WHERE store_id = ? AND product_id IN (?` +
		placeholders(len(items)-1) + `)`
	args := make([]any, 0, len(items)+1)
	args = append(args, storeID)
	for _, it := range items {
		args = append(args, it.ProductID)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.AvailabilityResult{}, fmt.Errorf("query stock: %w", err)
	}
	defer rows.Close()

	found := make(map[string]domain.StockRecord, len(items))
	for rows.Next() {
		var rec domain.StockRecord
		if err := rows.Scan(&rec.ProductID, &rec.Quantity, &rec.SafetyThreshold); err != nil {
			return domain.AvailabilityResult{}, fmt.Errorf("scan stock: %w", err)
		}
		found[rec.ProductID] = rec
	}
	if err := rows.Err(); err != nil {
		return domain.AvailabilityResult{}, fmt.Errorf("iterate stock: %w", err)
	}

	for _, it := range items {
		rec, ok := found[it.ProductID]
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

// Deduct decrements every item inside one transaction, re-checking each
// quantity under a row lock so a concurrent deduction cannot oversell. Any
// shortfall rolls the whole transaction back; the pre-check snapshot is
// never trusted here.
func (m *MySQLStore) Deduct(ctx context.Context, storeID string, items []domain.DeductionItem, refType domain.ReferenceType, referenceID, orderNumber, actorUserID string) (domain.LedgerResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Lock rows in a fixed order so concurrent multi-item deductions cannot
	// deadlock each other.
	sorted := make([]domain.DeductionItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	var itemErrs []domain.ItemError
	txIDs := make([]string, 0, len(sorted))

	for _, it := range sorted {
		var qty int
		err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM stock_records
			WHERE store_id = ? AND product_id = ? FOR UPDATE`,
			storeID, it.ProductID,
		).Scan(&qty)
		if errors.Is(err, sql.ErrNoRows) {
			itemErrs = append(itemErrs, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Reason:    "product not found",
			})
			continue
		}
		if err != nil {
			return domain.LedgerResult{}, fmt.Errorf("lock stock row: %w", err)
		}
		if qty < it.Quantity {
			itemErrs = append(itemErrs, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: qty,
			})
			continue
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE stock_records
			SET quantity = quantity - ?, version = version + 1, updated_at = NOW()
			WHERE store_id = ? AND product_id = ? AND quantity >= ?`,
			it.Quantity, storeID, it.ProductID, it.Quantity,
		)
		if err != nil {
			return domain.LedgerResult{}, fmt.Errorf("deduct stock: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			itemErrs = append(itemErrs, domain.ItemError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: qty,
			})
			continue
		}

		id := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions
				(id, store_id, product_id, quantity_delta, reference_type, reference_id, order_number, actor_user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, storeID, it.ProductID, -it.Quantity, string(refType), referenceID, orderNumber, actorUserID,
		)
		if err != nil {
			return domain.LedgerResult{}, fmt.Errorf("insert transaction: %w", err)
		}
		txIDs = append(txIDs, id)
	}

	if len(itemErrs) > 0 {
		// The deferred rollback discards every decrement already applied.
		return domain.LedgerResult{Success: false, Errors: itemErrs}, nil
	}

	if err := tx.Commit(); err != nil {
		return domain.LedgerResult{}, fmt.Errorf("commit deduction: %w", err)
	}
	return domain.LedgerResult{Success: true, TransactionIDs: txIDs}, nil
}

// Restore re-increments every quantity deducted under the reference and
// appends compensating transactions typed with the triggering flow. The
// original deduction rows are locked first, so two concurrent restores
// serialize; the second sees the existing compensating rows and becomes a
// no-op regardless of its refType.
func (m *MySQLStore) Restore(ctx context.Context, refType domain.ReferenceType, referenceID, actorUserID string) (domain.LedgerResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT store_id, product_id, -quantity_delta, order_number
		FROM inventory_transactions
		WHERE reference_id = ? AND quantity_delta < 0
		ORDER BY product_id FOR UPDATE`,
		referenceID,
	)
	if err != nil {
		return domain.LedgerResult{}, fmt.Errorf("load deductions: %w", err)
	}

	type deduction struct {
		storeID     string
		productID   string
		quantity    int
		orderNumber string
	}
	var deductions []deduction
	for rows.Next() {
		var d deduction
		if err := rows.Scan(&d.storeID, &d.productID, &d.quantity, &d.orderNumber); err != nil {
			rows.Close()
			return domain.LedgerResult{}, fmt.Errorf("scan deduction: %w", err)
		}
		deductions = append(deductions, d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return domain.LedgerResult{}, fmt.Errorf("iterate deductions: %w", err)
	}
	rows.Close()

	if len(deductions) == 0 {
		return domain.LedgerResult{
			Success: false,
			Errors:  []domain.ItemError{{Reason: "no deduction recorded for reference"}},
		}, nil
	}

	var restored int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM inventory_transactions
		WHERE reference_id = ? AND quantity_delta > 0`,
		referenceID,
	).Scan(&restored)
	if err != nil {
		return domain.LedgerResult{}, fmt.Errorf("check restoration guard: %w", err)
	}
	if restored > 0 {
		// Already restored for this reference.
		return domain.LedgerResult{Success: true}, nil
	}

	txIDs := make([]string, 0, len(deductions))
	for _, d := range deductions {
		_, err := tx.ExecContext(ctx, `
			UPDATE stock_records
			SET quantity = quantity + ?, version = version + 1, updated_at = NOW()
			WHERE store_id = ? AND product_id = ?`,
			d.quantity, d.storeID, d.productID,
		)
		if err != nil {
			return domain.LedgerResult{}, fmt.Errorf("restore stock: %w", err)
		}

		id := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions
				(id, store_id, product_id, quantity_delta, reference_type, reference_id, order_number, actor_user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, d.storeID, d.productID, d.quantity, string(refType), referenceID, d.orderNumber, actorUserID,
		)
		if err != nil {
			return domain.LedgerResult{}, fmt.Errorf("insert compensating transaction: %w", err)
		}
		txIDs = append(txIDs, id)
	}

	if err := tx.Commit(); err != nil {
		return domain.LedgerResult{}, fmt.Errorf("commit restoration: %w", err)
	}
	return domain.LedgerResult{Success: true, TransactionIDs: txIDs}, nil
}

// UpsertStockRecord creates or resets a stock record; used by seeding and
// store-side restock flows, not by the order path.
func (m *MySQLStore) UpsertStockRecord(ctx context.Context, rec domain.StockRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_records (store_id, product_id, quantity, safety_threshold, version)
		VALUES (?, ?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), safety_threshold = VALUES(safety_threshold), version = version + 1`,
		rec.StoreID, rec.ProductID, rec.Quantity, rec.SafetyThreshold,
	)
	if err != nil {
		return fmt.Errorf("upsert stock record: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		out = append(out, ',', '?')
	}
	return string(out)
}
