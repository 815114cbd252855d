package domain

import (
	"fmt"
	"time"
)

// StockRecord is the per-store, per-product stock counter. Quantity is only
// ever mutated through the inventory ledger's deduct/restore operations.
type StockRecord struct {
	StoreID         string
	ProductID       string
	Quantity        int
	SafetyThreshold int
	Version         int // optimistic locking
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ReferenceType string

const (
	ReferenceTypeOrder  ReferenceType = "order"
	ReferenceTypeRefund ReferenceType = "refund"
)

// InventoryTransaction is an append-only audit record of a single stock
// mutation. Deductions carry a negative delta, restorations a positive one.
type InventoryTransaction struct {
	ID            string
	StoreID       string
	ProductID     string
	QuantityDelta int
	ReferenceType ReferenceType
	ReferenceID   string
	OrderNumber   string
	ActorUserID   string
	CreatedAt     time.Time
}

// DeductionItem is one requested line of a deduction or availability check.
type DeductionItem struct {
	ProductID string
	Quantity  int
}

// StockSnapshot is the availability view returned to callers, valid even when
// the overall check fails.
type StockSnapshot struct {
	ProductID string
	Available int
	LowStock  bool
}

// ItemError describes why a single item failed an availability check or
// deduction attempt.
type ItemError struct {
	ProductID string
	Requested int
	Available int
	Reason    string
}

func (e ItemError) String() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.ProductID, e.Reason)
	}
	return fmt.Sprintf("%s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// AvailabilityResult is the outcome of a read-only stock check.
type AvailabilityResult struct {
	IsValid bool
	Errors  []ItemError
	Stock   map[string]StockSnapshot
}

// LedgerResult is the outcome of a deduct or restore call. Success false with
// per-item errors means nothing was mutated.
type LedgerResult struct {
	Success        bool
	TransactionIDs []string
	Errors         []ItemError
}
