package port

import (
	"context"

	"github.com/okmart/ordercore/internal/core/domain"
)

// InventoryLedger owns every StockRecord mutation. Deduct and Restore are
// all-or-nothing across the items of a single call and serializable with
// respect to concurrent calls touching the same (store, product) rows.
type InventoryLedger interface {
	// ValidateAvailability is a read-only snapshot check. The stock snapshots
	// are returned even when the check fails so callers can display them.
	ValidateAvailability(ctx context.Context, storeID string, items []domain.DeductionItem) (domain.AvailabilityResult, error)

	// Deduct re-checks availability under a row lock and decrements every item,
	// appending one audit transaction per item. On a non-nil error nothing was
	// mutated and the call is safe to retry. Success false carries per-item
	// shortfall detail and likewise guarantees no partial mutation.
	Deduct(ctx context.Context, storeID string, items []domain.DeductionItem, refType domain.ReferenceType, referenceID, orderNumber, actorUserID string) (domain.LedgerResult, error)

	// Restore re-increments every quantity deducted under the given reference,
	// appending compensating transactions stamped with refType so the audit
	// log records which flow triggered the restoration. Invoking it twice for
	// the same reference is a no-op the second time, whatever the refType.
	Restore(ctx context.Context, refType domain.ReferenceType, referenceID, actorUserID string) (domain.LedgerResult, error)
}
